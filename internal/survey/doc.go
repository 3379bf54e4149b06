// Package survey holds the declarative intake questionnaire: categories,
// moods, per-mood follow-up questions and prompt texts, plus the matching
// rules that resolve inbound answers against the option lists.
package survey
