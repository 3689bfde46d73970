package policy

import "time"

// DefaultRules returns the rule set seeded into an empty store at first
// startup. Operators replace or extend these through the policy API.
func DefaultRules(now time.Time) []Rule {
	mk := func(id, name, desc string, actions []string, conditions map[string]interface{}, modifier float64, priority int) Rule {
		cs, err := ParseConditions(conditions)
		if err != nil {
			// The defaults use only recognized keys; a parse failure
			// here is a programming error.
			panic("invalid default rule " + id + ": " + err.Error())
		}
		return Rule{
			ID:           id,
			Name:         name,
			Description:  desc,
			ActionTypes:  actions,
			Conditions:   cs,
			RiskModifier: modifier,
			Enabled:      true,
			Priority:     priority,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	return []Rule{
		mk("refund_limit_500", "Refund Amount Limit",
			"Block refunds exceeding $500",
			[]string{"refund"},
			map[string]interface{}{KeyMaxAmount: 500.0},
			1.0, 10),
		mk("payment_limit_10000", "Payment Amount Limit",
			"Require approval for payments over $10,000",
			[]string{"payment"},
			map[string]interface{}{KeyMaxAmount: 10000.0},
			0.85, 20),
		mk("admin_action_high_risk", "Admin Actions High Risk",
			"All admin actions are high risk",
			[]string{"admin_action"},
			map[string]interface{}{},
			0.85, 5),
		mk("user_data_access", "User Data Access Control",
			"User data access requires a justification parameter",
			[]string{"user_data_access"},
			map[string]interface{}{KeyRequiresFields: []interface{}{"justification"}},
			0.3, 30),
		mk("database_write_protection", "Database Write Protection",
			"Database writes to protected tables",
			[]string{"database_write"},
			map[string]interface{}{KeyProtectedTables: []interface{}{"users", "payments", "credentials"}},
			1.0, 15),
		mk("bulk_operation_limit", "Bulk Operation Limit",
			"Limit bulk operations affecting many records",
			[]string{"database_write", "database_query"},
			map[string]interface{}{KeyMaxAffectedRows: 1000.0},
			0.9, 25),
	}
}
