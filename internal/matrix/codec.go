package matrix

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Fixed protocol commands. Numeric commands are built by the cmd* helpers
// below; indices are zero-padded to two digits, presets are a single digit.
const (
	cmdQueryModel    = "/*Type;"
	cmdQueryFirmware = "/^Version;"
	cmdQueryStatus   = "Status."
	cmdQueryPower    = "%9962."
	cmdQueryLock     = "%9961."
	cmdAllOff        = "All$."
	cmdAllThrough    = "All#."
	cmdPowerOn       = "PWON."
	cmdPowerOff      = "PWOFF."
	cmdStandby       = "STANDBY."
	cmdLockPanel     = "/%Lock;"
	cmdUnlockPanel   = "/%Unlock;"
)

func cmdRoute(input, output int) string {
	return fmt.Sprintf("%02dV%02d.", input, output)
}

func cmdRouteAll(input int) string {
	return fmt.Sprintf("%02dAll.", input)
}

func cmdOutputOff(output int) string {
	return fmt.Sprintf("%02d$.", output)
}

func cmdOutputOn(output int) string {
	return fmt.Sprintf("%02d@.", output)
}

func cmdQueryOutput(output int) string {
	return fmt.Sprintf("Status%02d.", output)
}

func cmdSavePreset(preset int) string {
	return fmt.Sprintf("Save%d.", preset)
}

func cmdRecallPreset(preset int) string {
	return fmt.Sprintf("Recall%d.", preset)
}

func cmdClearPreset(preset int) string {
	return fmt.Sprintf("Clear%d.", preset)
}

// Ordered extraction strategies for the full-status response. The grammar
// is reverse engineered from observed device output, so several candidate
// shapes are tried; the first one that matches anything wins outright and
// no merging happens across strategies.
//
// Known shapes:
//
//	"O1-I2 O3-I1"           (also O01-I02, O1:I2)
//	"Output1:Input2 ..."    (also Out1-In2)
//	"1:2 3:1"               (bare pairs, last resort)
var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)O(\d+)[:\-]I(\d+)`),
	regexp.MustCompile(`(?i)Out(?:put)?(\d+)[:\-]In(?:put)?(\d+)`),
	regexp.MustCompile(`(\d+)[:\-](\d+)`),
}

// singleOutputPattern finds an "input N" style token in a per-output query
// response.
var singleOutputPattern = regexp.MustCompile(`[Ii]n(?:put)?[:\s]*(\d+)`)

// parseStatusResponse extracts the routing table from a Status. response.
//
// Every output in [1, numOutputs] is guaranteed an entry in the result,
// defaulting to 0 (off/unknown) if never seen before. Outputs not mentioned
// by the response keep their prior values; a response matching no strategy
// changes nothing beyond the defaulting. Extracted pairs are validated
// against the declared matrix size and input 0 is normalised to off.
func parseStatusResponse(response string, numOutputs, numInputs int, prior map[int]int) map[int]int {
	outputs := make(map[int]int, numOutputs)
	for out := 1; out <= numOutputs; out++ {
		outputs[out] = prior[out]
	}

	for _, pattern := range statusPatterns {
		matches := pattern.FindAllStringSubmatch(response, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			out, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			in, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			if out >= 1 && out <= numOutputs && in >= 0 && in <= numInputs {
				outputs[out] = in
			}
		}
		break // first matching strategy is used exclusively
	}

	return outputs
}

// parseSingleOutput extracts the routed input from a StatusOO. response.
//
// Returns (input, true) when the response names an in-range input, or
// (0, true) when it indicates a closed/off output. Returns (0, false) when
// the response yields no usable information; the caller keeps the prior
// cached value in that case.
func parseSingleOutput(response string, numInputs int) (int, bool) {
	if m := singleOutputPattern.FindStringSubmatch(response); m != nil {
		if in, err := strconv.Atoi(m[1]); err == nil && in >= 1 && in <= numInputs {
			return in, true
		}
	}

	lower := strings.ToLower(response)
	if strings.Contains(lower, "closed") || strings.Contains(lower, "off") {
		return 0, true
	}

	return 0, false
}

// parsePowerState maps a %9962. response onto a power state.
// Anything that names neither standby nor off is treated as on.
func parsePowerState(response string) PowerState {
	upper := strings.ToUpper(response)
	switch {
	case strings.Contains(upper, "STANDBY"):
		return PowerStandby
	case strings.Contains(upper, "PWOFF"):
		return PowerOff
	default:
		return PowerOn
	}
}

// parseLocked reports whether a %9961. response indicates a locked panel.
// "unlock" is checked first since "unlocked" contains "lock".
func parseLocked(response string) bool {
	lower := strings.ToLower(response)
	if strings.Contains(lower, "unlock") {
		return false
	}
	return strings.Contains(lower, "lock")
}

// decodeASCII decodes device bytes as ASCII, substituting the Unicode
// replacement character for anything outside the 7-bit range rather than
// failing the exchange.
func decodeASCII(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if b < utf8.RuneSelf {
			sb.WriteByte(b)
		} else {
			sb.WriteRune(utf8.RuneError)
		}
	}
	return sb.String()
}
