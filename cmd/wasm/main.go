//go:build js && wasm

// Package main provides WASM bindings for the formlogic engine, so the form
// builder can evaluate visibility and validation in the browser.
package main

import (
	"syscall/js"
	"time"

	"github.com/goccy/go-json"

	"github.com/dlovans/formlogic/pkg/formlogic"
	"github.com/dlovans/formlogic/pkg/lint"
)

func main() {
	js.Global().Set("FormlogicRun", js.FuncOf(formlogicRun))
	js.Global().Set("FormlogicVerify", js.FuncOf(formlogicVerify))
	js.Global().Set("FormlogicLint", js.FuncOf(formlogicLint))

	// Keep the Go runtime alive
	select {}
}

// formlogicRun wraps formlogic.Run.
// Usage: FormlogicRun(formText, responseJSON, isoDateString?) -> { result: object, error?: string }
func formlogicRun(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return makeError("FormlogicRun requires 2 arguments: formText, responseJSON")
	}

	date := time.Now()
	if len(args) > 2 && args[2].Type() == js.TypeString && args[2].String() != "" {
		var err error
		date, err = time.Parse(time.RFC3339, args[2].String())
		if err != nil {
			date, err = time.Parse("2006-01-02", args[2].String())
			if err != nil {
				return makeError("Invalid date format. Use ISO 8601 (YYYY-MM-DD or RFC3339)")
			}
		}
	}

	out, err := formlogic.Run([]byte(args[0].String()), []byte(args[1].String()), date)
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(out)
}

// formlogicVerify wraps formlogic.Verify.
// Usage: FormlogicVerify(formText, responseJSON, reportJSON) -> { valid: boolean, error?: string }
func formlogicVerify(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeError("FormlogicVerify requires 3 arguments: formText, responseJSON, reportJSON")
	}

	valid, err := formlogic.Verify([]byte(args[0].String()), []byte(args[1].String()), []byte(args[2].String()))
	if err != nil {
		return map[string]any{
			"valid": false,
			"error": err.Error(),
		}
	}
	return map[string]any{
		"valid": valid,
	}
}

// formlogicLint wraps lint.Run with the built-in validation types.
// Usage: FormlogicLint(formText) -> { result: object, error?: string }
func formlogicLint(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("FormlogicLint requires 1 argument: formText")
	}

	result, err := lint.Run([]byte(args[0].String()), nil)
	if err != nil {
		return makeError(err.Error())
	}
	out, err := json.Marshal(result)
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(out)
}

// makeError creates a JS-friendly error response
func makeError(msg string) map[string]any {
	return map[string]any{
		"error": msg,
	}
}

// makeResult returns data as a plain JS object, or as a string when it
// cannot be decoded.
func makeResult(data []byte) map[string]any {
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{
			"result": string(data),
		}
	}
	return map[string]any{
		"result": result,
	}
}
