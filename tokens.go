package phonecall

// EstimateTokens estimates the token count for a given text using a Unicode-aware heuristic.
// ASCII characters are weighted at ~4 per token, everything else at ~1 per token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// HistoryTokens sums the estimated tokens of every turn in history.
func HistoryTokens(history History) int {
	total := 0
	for _, t := range history {
		total += EstimateTokens(t.Text)
	}
	return total
}
