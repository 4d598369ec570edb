package skillagent

import (
	"github.com/cortexrt/cortex/internal/workflow"
)

// extractDecomposition implements SPEC_FULL.md §4.5's "Pipeline result
// extraction" rule: iterate the pipeline's skill IDs in order, and return
// the first result that parses as either the structured {tasks: [...]}
// shape or the legacy flat single-task shape. Non-map results are skipped.
func extractDecomposition(pipeline []string, results map[string]any) (workflow.Decomposition, bool) {
	for _, skillID := range pipeline {
		raw, ok := results[skillID]
		if !ok {
			continue
		}
		asMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if decomposition, ok := parseDecomposition(asMap); ok {
			return decomposition, true
		}
	}
	return workflow.Decomposition{}, false
}

func parseDecomposition(raw map[string]any) (workflow.Decomposition, bool) {
	summary, _ := raw["summary"].(string)
	confidence, _ := raw["confidence"].(float64)

	if rawTasks, ok := raw["tasks"].([]any); ok {
		tasks := make([]workflow.DecompositionTask, 0, len(rawTasks))
		for _, rawTask := range rawTasks {
			taskMap, ok := rawTask.(map[string]any)
			if !ok {
				continue
			}
			capability, _ := taskMap["capability"].(string)
			if capability == "" {
				continue
			}
			description, _ := taskMap["description"].(string)
			authorityTier, _ := taskMap["authorityTier"].(string)
			tasks = append(tasks, workflow.DecompositionTask{
				Capability:    capability,
				Description:   description,
				AuthorityTier: authorityTier,
			})
		}
		return workflow.Decomposition{Summary: summary, Confidence: confidence, Tasks: tasks}, true
	}

	// Legacy flat shape: one task described directly on the top-level object.
	capability, _ := raw["capability"].(string)
	if capability == "" {
		return workflow.Decomposition{}, false
	}
	authorityTier, _ := raw["authorityTier"].(string)
	return workflow.Decomposition{
		Summary:    summary,
		Confidence: confidence,
		Tasks: []workflow.DecompositionTask{{
			Capability:    capability,
			Description:   summary,
			AuthorityTier: authorityTier,
		}},
	}, true
}
