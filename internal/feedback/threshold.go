// Package feedback implements the learning loop: recording user
// corrections, promoting repeated corrections into rules, and retraining
// the similarity stage from accumulated feedback.
package feedback

// Threshold returns the adaptive retraining threshold for a given total
// categorized volume. Early on every few corrections matter; at scale the
// loop batches more before retraining.
func Threshold(totalCategorized int) int {
	switch {
	case totalCategorized < 100:
		return 5
	case totalCategorized < 500:
		return 10
	default:
		return 50
	}
}
