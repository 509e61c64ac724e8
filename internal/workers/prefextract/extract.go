package prefextract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/voyplan/memory-backend/internal/platform/ai"
	"github.com/voyplan/memory-backend/internal/types"
)

const (
	heuristicTextChars = 5000
	llmConvoChars      = 8000
)

var (
	budgetRe    = regexp.MustCompile(`(?i)\b(budget|under|around)\s*\$?\s*([0-9]{2,6})\b`)
	departureRe = regexp.MustCompile(`\bfrom\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)\b`)
	crowdsRe    = regexp.MustCompile(`(?i)\b(crowd|crowded|busy areas)\b`)

	likeSignals = []struct {
		re  *regexp.Regexp
		tag string
	}{
		{regexp.MustCompile(`(?i)\b(beach|island|coast)\b`), "beach"},
		{regexp.MustCompile(`(?i)\b(mountain|hiking|trail)\b`), "mountain"},
		{regexp.MustCompile(`(?i)\b(museum|art|history)\b`), "culture"},
	}
)

// ExtractHeuristics mines travel preferences from conversation text with
// keyword rules. It only ever returns keys it is confident about; an empty
// map means nothing matched.
func ExtractHeuristics(msgs []types.Message) map[string]any {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	text := types.Truncate(strings.Join(parts, "\n"), heuristicTextChars)

	prefs := map[string]any{}

	if m := budgetRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			prefs["budget"] = n
		}
	}
	if m := departureRe.FindStringSubmatch(text); m != nil {
		prefs["departure_city"] = m[1]
	}

	var likes []string
	for _, sig := range likeSignals {
		if sig.re.MatchString(text) {
			likes = append(likes, sig.tag)
		}
	}
	if len(likes) > 0 {
		sort.Strings(likes)
		prefs["likes"] = likes
	}

	if crowdsRe.MatchString(text) {
		prefs["avoid_crowds"] = true
	}

	return prefs
}

// ExtractLLM asks the model for a strict-JSON preference object. Any call or
// parse failure degrades to an empty map so the heuristics still land.
func ExtractLLM(ctx context.Context, extractor ai.Extractor, msgs []types.Message) map[string]any {
	if extractor == nil {
		return map[string]any{}
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("- %s: %s", m.Type, m.Content))
	}
	convo := types.Truncate(strings.Join(parts, "\n"), llmConvoChars)

	prompt := "Extract stable user travel preferences from this conversation.\n" +
		"Return STRICT JSON with keys among: budget (int), departure_city (str), likes (list[str]), avoid_crowds (bool).\n" +
		"If unknown, omit the key. Conversation:\n" +
		convo + "\nJSON only:"

	out, err := extractor.ExtractJSON(ctx, prompt)
	if err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Merge overlays updates onto base, updates winning on conflicts. Neither
// input is mutated.
func Merge(base, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
