// Package oracle provides the classification and risk oracles.
//
// GenAI asks a Gemini model through google.golang.org/genai. Static answers
// from a fixed ruleset of well-known cookie names, storage keys and tracker
// hosts, so scans can run offline and deterministically.
//
// Both implement classify.Oracle and assemble.RiskAssessor.
package oracle
