package notify

import (
	"fmt"
	"strings"

	"github.com/irisdrone/echallan/internal/models"
)

// Message renders the SMS body for a challan.
func Message(c *models.Citation) string {
	var classes []string
	seen := make(map[string]bool)
	for _, v := range c.Violations {
		name := v.Class
		if name == "" {
			name = v.RuleID
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		classes = append(classes, name)
	}
	return fmt.Sprintf("Violation: %s detected for %s. Penalty INR %s. Challan No: %s.",
		strings.Join(classes, ", "), c.VehicleNo, c.TotalPenalty.String(), c.ChallanNo)
}
