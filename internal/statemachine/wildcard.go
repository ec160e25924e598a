package statemachine

// MatchWildcard reports whether name matches pattern under the glob
// semantics spec §4.2 requires: '*' matches any run of characters
// (including none), '?' matches exactly one character, matching is
// case-sensitive. The source's trie-based matcher is replaced by a
// standard dynamic-programming glob match — any algorithm honoring the
// same semantics is spec-conformant (spec §9).
func MatchWildcard(pattern, name string) bool {
	p, n := []rune(pattern), []rune(name)
	// dp[i][j] true iff pattern[:i] matches name[:j]
	dp := make([][]bool, len(p)+1)
	for i := range dp {
		dp[i] = make([]bool, len(n)+1)
	}
	dp[0][0] = true
	for i := 1; i <= len(p); i++ {
		if p[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}

	for i := 1; i <= len(p); i++ {
		for j := 1; j <= len(n); j++ {
			switch p[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && p[i-1] == n[j-1]
			}
		}
	}

	return dp[len(p)][len(n)]
}
