package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/adaptive-ed/assessment-engine/internal/llm"
	"github.com/adaptive-ed/assessment-engine/internal/models"
)

// ===== TEXT STRATEGIES =====

func gradeExact(key models.AnswerKey, submitted models.SubmittedAnswer) *GradeResult {
	details := map[string]interface{}{"method": string(models.GradeExact)}

	if submitted.Text == nil {
		details["error"] = "missing text answer"
		return &GradeResult{Score: 0, Details: details}
	}

	correct := false
	for _, ref := range key.References() {
		if normalizeText(*submitted.Text) == normalizeText(ref) {
			correct = true
			break
		}
	}

	score := 0.0
	if correct {
		score = 1.0
	}
	return &GradeResult{IsCorrect: correct, Score: score, Details: details}
}

func gradeFuzzy(key models.AnswerKey, submitted models.SubmittedAnswer) *GradeResult {
	details := map[string]interface{}{"method": string(models.GradeFuzzy)}

	if submitted.Text == nil {
		details["error"] = "missing text answer"
		return &GradeResult{Score: 0, Details: details}
	}

	// Best similarity over the accepted references.
	best := 0.0
	for _, ref := range key.References() {
		if sim := textSimilarity(*submitted.Text, ref); sim > best {
			best = sim
		}
	}

	details["similarity"] = best
	return &GradeResult{
		IsCorrect: best >= fuzzyCorrectThreshold,
		Score:     best,
		Details:   details,
	}
}

// semanticVerdict is the strict JSON contract the grading prompt demands.
type semanticVerdict struct {
	Similarity  float64 `json:"similarity"`
	IsCorrect   bool    `json:"isCorrect"`
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

func (s *gradingService) gradeSemantic(ctx context.Context, item *models.Item, key models.AnswerKey, submitted models.SubmittedAnswer) *GradeResult {
	details := map[string]interface{}{"method": string(models.GradeSemantic)}

	if submitted.Text == nil {
		details["error"] = "missing text answer"
		return &GradeResult{Score: 0, Details: details}
	}

	references := key.References()
	if s.llmClient == nil || len(references) == 0 {
		return s.semanticFallback(key, submitted, details, "no collaborator configured")
	}

	gradeCtx, cancel := context.WithTimeout(ctx, s.gradingTimeout)
	defer cancel()

	raw, err := s.llmClient.Complete(gradeCtx, llm.BuildSemanticGradingPrompt(item.Question, references, *submitted.Text))
	if err != nil {
		s.logger.WarnContext(ctx, "Semantic grading call failed, falling back",
			"item_id", item.ID, "error", err)
		return s.semanticFallback(key, submitted, details, "collaborator error")
	}

	var verdict semanticVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		s.logger.WarnContext(ctx, "Semantic grading returned malformed JSON, falling back",
			"item_id", item.ID, "error", err)
		return s.semanticFallback(key, submitted, details, "malformed verdict")
	}
	if verdict.Similarity < 0 || verdict.Similarity > 1 {
		return s.semanticFallback(key, submitted, details, "similarity out of range")
	}

	details["similarity"] = verdict.Similarity
	details["confidence"] = verdict.Confidence

	return &GradeResult{
		IsCorrect:   verdict.Similarity >= semanticCorrectThreshold || verdict.IsCorrect,
		Score:       verdict.Similarity,
		Details:     details,
		Explanation: verdict.Explanation,
	}
}

// semanticFallback grades against the first reference with the fuzzy
// strategy and flags the attempt for human review.
func (s *gradingService) semanticFallback(key models.AnswerKey, submitted models.SubmittedAnswer, details map[string]interface{}, reason string) *GradeResult {
	details["fallback"] = reason

	references := key.References()
	if len(references) == 0 {
		return &GradeResult{Score: 0, Details: details, NeedsManualGrading: true}
	}

	sim := textSimilarity(*submitted.Text, references[0])
	details["similarity"] = sim

	return &GradeResult{
		IsCorrect:          sim >= fuzzyCorrectThreshold,
		Score:              sim,
		Details:            details,
		NeedsManualGrading: true,
	}
}

// ===== STRUCTURAL STRATEGIES =====

func gradePairs(key models.AnswerKey, submitted models.SubmittedAnswer) *GradeResult {
	details := map[string]interface{}{"method": string(models.GradePairs)}

	total := len(key.Pairs)
	if total == 0 {
		details["error"] = "empty reference pairs"
		return &GradeResult{Score: 0, Details: details, NeedsManualGrading: true}
	}

	// Unordered greedy one-to-one matching on normalized tuples.
	matched := make([]bool, total)
	correct := 0
	for _, sub := range submitted.Pairs {
		for i, ref := range key.Pairs {
			if matched[i] {
				continue
			}
			if normalizeText(sub.Key) == normalizeText(ref.Key) &&
				normalizeText(sub.Value) == normalizeText(ref.Value) {
				matched[i] = true
				correct++
				break
			}
		}
	}

	score := float64(correct) / float64(total)
	details["matched_pairs"] = correct
	details["total_pairs"] = total

	return &GradeResult{
		IsCorrect: score == 1.0,
		Score:     score,
		Details:   details,
	}
}

func gradePositional(key models.AnswerKey, submitted models.SubmittedAnswer) *GradeResult {
	details := map[string]interface{}{"method": string(models.GradePositional)}

	total := len(key.Sequence)
	if total == 0 {
		details["error"] = "empty reference sequence"
		return &GradeResult{Score: 0, Details: details, NeedsManualGrading: true}
	}

	if len(submitted.Sequence) != total {
		details["length_mismatch"] = true
		details["total_positions"] = total
		return &GradeResult{Score: 0, Details: details}
	}

	correct := 0
	for i, ref := range key.Sequence {
		if normalizeText(submitted.Sequence[i]) == normalizeText(ref) {
			correct++
		}
	}

	score := float64(correct) / float64(total)
	details["correct_positions"] = correct
	details["total_positions"] = total

	return &GradeResult{
		IsCorrect: score == 1.0,
		Score:     score,
		Details:   details,
	}
}

// ===== TEXT HELPERS =====

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// textSimilarity is the normalized Levenshtein similarity over the
// normalized inputs: 1 - distance/max(len).
func textSimilarity(a, b string) float64 {
	s1, s2 := normalizeText(a), normalizeText(b)
	if s1 == s2 {
		return 1.0
	}

	maxLen := float64(len(s1))
	if len(s2) > len(s1) {
		maxLen = float64(len(s2))
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := float64(levenshteinDistance(s1, s2))
	return 1.0 - (distance / maxLen)
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(s1)][len(s2)]
}
