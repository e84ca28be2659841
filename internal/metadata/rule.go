package metadata

// Rule is a submit-time check over the whole form aggregate. Expression is an
// expr-lang program that evaluates to true when the rule is violated.
type Rule struct {
	Name       string `json:"name"`
	Field      string `json:"field,omitempty"` // field or section the message is attached to
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
	StopOnFail bool   `json:"stop_on_fail,omitempty"`
}
