// Package prompts contains the LLM prompt text used by Heirloom.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. User-facing configuration lives in config.yaml;
// this package holds the instructions and fixed strings we send to models and
// users.
//
// Convention: each prompt category gets its own file with an exported
// function or constant for the dynamic and fixed parts.
package prompts
