package types

type PlanItem struct {
	ID             string          `json:"id" mapstructure:"id"`
	ProviderID     PaymentProvider `json:"provider_id" mapstructure:"provider_id"`
	ProviderPlanID string          `json:"provider_plan_id" mapstructure:"provider_plan_id"`
	Plan           Plan            `json:"plan" mapstructure:"plan"`
	// BillingCycleDays is how far one completed payment extends the period.
	BillingCycleDays int `json:"billing_cycle_days" mapstructure:"billing_cycle_days"`
}
