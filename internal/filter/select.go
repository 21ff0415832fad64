package filter

import "github.com/geistfabrik/geistfabrik/internal/model"

// Select picks the final suggestions to present. In "full" mode every
// surviving suggestion is returned; otherwise, if there are more than
// count, a deterministic sample of size count is drawn using sample. The
// caller is expected to seed its sampler from the session seed so the same
// session always selects the same subset.
func Select(mode string, suggestions []model.Suggestion, count int, sample func([]model.Suggestion, int) []model.Suggestion) []model.Suggestion {
	if mode == "full" || count < 0 || len(suggestions) <= count {
		return suggestions
	}
	return sample(suggestions, count)
}
