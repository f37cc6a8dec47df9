package agent

import (
	"context"
	"strings"
	"testing"
)

func TestCodeAnalyzer_DetectsSecurityPatterns(t *testing.T) {
	ca := NewCodeAnalyzer()
	code := `package main

func login() {
	var password string
	password = "hunter2!!"
	_ = password
}
`
	result, err := ca.Execute(context.Background(), nil, map[string]interface{}{"code": code, "language": "go"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	analysis := result.Output["analysis"].(map[string]interface{})
	issues, _ := analysis["security_issues"].([]map[string]interface{})
	if len(issues) == 0 {
		t.Fatalf("expected at least one security issue, got none: %#v", analysis)
	}
	found := false
	for _, issue := range issues {
		if issue["pattern"] == "hardcoded_password" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected hardcoded_password finding, got %#v", issues)
	}
}

func TestCodeAnalyzer_ComplexityCounts(t *testing.T) {
	ca := NewCodeAnalyzer()
	code := `package main

func classify(n int) string {
	if n > 10 {
		return "big"
	} else if n > 0 {
		return "small"
	}
	for i := 0; i < n; i++ {
		_ = i
	}
	return "none"
}
`
	result, err := ca.Execute(context.Background(), nil, map[string]interface{}{"code": code})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	analysis := result.Output["analysis"].(map[string]interface{})
	complexity := analysis["complexity_metrics"].(map[string]interface{})
	if complexity["function_count"].(int) != 1 {
		t.Fatalf("expected 1 function, got %v", complexity["function_count"])
	}
	if complexity["cyclomatic_complexity"].(int) < 3 {
		t.Fatalf("expected cyclomatic complexity >= 3, got %v", complexity["cyclomatic_complexity"])
	}
}

func TestCodeAnalyzer_SyntaxErrorScoresZero(t *testing.T) {
	ca := NewCodeAnalyzer()
	result, err := ca.Execute(context.Background(), nil, map[string]interface{}{"code": "this is not { valid go"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	analysis := result.Output["analysis"].(map[string]interface{})
	if analysis["analysis_status"] != "failed" {
		t.Fatalf("expected failed status, got %v", analysis["analysis_status"])
	}
	if score := result.Output["analysis"].(map[string]interface{})["quality_score"]; score != 0 {
		t.Fatalf("expected quality_score 0, got %v", score)
	}
}

func TestCodeAnalyzer_RequiresCode(t *testing.T) {
	ca := NewCodeAnalyzer()
	_, err := ca.Execute(context.Background(), nil, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing code")
	}
	if ae, ok := err.(*Error); !ok || ae.Kind != KindInvalidInput {
		t.Fatalf("expected InvalidInput error, got %v", err)
	}
}

func TestCodeAnalyzer_GenericLanguageFallback(t *testing.T) {
	ca := NewCodeAnalyzer()
	result, err := ca.Execute(context.Background(), nil, map[string]interface{}{
		"code": "password = \"hunter2!!\"", "language": "python",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	analysis := result.Output["analysis"].(map[string]interface{})
	if analysis["analysis_status"] != "limited" {
		t.Fatalf("expected limited status for non-go language, got %v", analysis["analysis_status"])
	}
	summary, _ := result.Output["summary"].(string)
	if !strings.Contains(summary, "security issue") {
		t.Fatalf("expected summary to mention security issues, got %q", summary)
	}
}
