package ltq

import (
	"strconv"
	"strings"

	"github.com/tclesius/ltq/internal/errors"
)

// parseRate parses a TaskOptions.MaxRate string of the form "N/u" where
// u is one of s, m, h (spec §3), returning the rate in events per second.
func parseRate(rate string) (float64, error) {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return 0, errors.E(errors.InvalidArgument, "max_rate must be of the form \"N/u\", got "+strconv.Quote(rate))
	}
	count, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || count <= 0 {
		return 0, errors.E(errors.InvalidArgument, "max_rate count must be a positive number, got "+strconv.Quote(parts[0]))
	}
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "s":
		return count, nil
	case "m":
		return count / 60, nil
	case "h":
		return count / 3600, nil
	default:
		return 0, errors.E(errors.InvalidArgument, "max_rate unit must be one of s, m, h, got "+strconv.Quote(parts[1]))
	}
}
