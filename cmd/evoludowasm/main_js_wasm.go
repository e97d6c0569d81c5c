// Command evoludowasm exposes the engine to a browser host via syscall/js
// (spec §6 "WASM surface"), mirroring the teacher's single global-function
// registration pattern but driving internal/runner.Runner instead of a
// genetic algorithm.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/evoludo-labs/evoludo-go/internal/runner"
	"github.com/evoludo-labs/evoludo-go/pkg/config"
)

// Result holds one run's outcome for the browser.
type Result struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Generation float64   `json:"generation"`
	Converged  bool      `json:"converged"`
	History    []float64 `json:"history"`
}

// Progress holds one report-interval's progress for the browser.
type Progress struct {
	Generation float64 `json:"generation"`
	Converged  bool    `json:"converged"`
}

var (
	progressCallback js.Value
	cancelRun         context.CancelFunc
)

func main() {
	c := make(chan struct{})

	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	js.Global().Set("stopSimulation", js.FuncOf(stopSimulation))
	js.Global().Set("getDefaultConfig", js.FuncOf(getDefaultConfig))
	js.Global().Set("validateConfig", js.FuncOf(validateConfig))
	js.Global().Set("getParameterInfo", js.FuncOf(getParameterInfo))

	fmt.Println("evoludo WASM module loaded")

	<-c
}

// getDefaultConfig returns the WASM-tuned default configuration as JSON.
func getDefaultConfig(this js.Value, args []js.Value) any {
	cfg := config.DefaultForWASM()
	data, err := json.Marshal(cfg)
	if err != nil {
		return js.ValueOf(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return js.ValueOf(string(data))
}

// validateConfig parses and validates a JSON configuration string.
func validateConfig(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf(`{"valid": false, "error": "missing config argument"}`)
	}
	cfg, err := config.LoadFromJSON(args[0].String())
	if err != nil {
		return js.ValueOf(fmt.Sprintf(`{"valid": false, "error": %q}`, err.Error()))
	}
	if err := cfg.ValidateForWASM(); err != nil {
		return js.ValueOf(fmt.Sprintf(`{"valid": false, "error": %q}`, err.Error()))
	}
	return js.ValueOf(`{"valid": true}`)
}

// getParameterInfo returns the parameter schema driving the browser form.
func getParameterInfo(this js.Value, args []js.Value) any {
	data, err := json.Marshal(config.GetParameterInfo())
	if err != nil {
		return js.ValueOf(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return js.ValueOf(string(data))
}

// runSimulation(configJSON, onProgress) starts a run; returns a Promise
// resolving to a Result.
func runSimulation(this js.Value, args []js.Value) any {
	handler := js.FuncOf(func(this js.Value, resolveArgs []js.Value) any {
		resolve, reject := resolveArgs[0], resolveArgs[1]

		if len(args) < 1 {
			reject.Invoke(js.ValueOf("missing config argument"))
			return nil
		}
		cfg, err := config.LoadFromJSON(args[0].String())
		if err != nil {
			reject.Invoke(js.ValueOf(err.Error()))
			return nil
		}
		if len(args) > 1 {
			progressCallback = args[1]
		}

		r, err := runner.New(cfg)
		if err != nil {
			reject.Invoke(js.ValueOf(err.Error()))
			return nil
		}

		var ctx context.Context
		ctx, cancelRun = context.WithCancel(context.Background())

		go func() {
			history, runErr := r.Run(ctx, func(generation float64, converged bool) {
				if progressCallback.Truthy() {
					data, _ := json.Marshal(Progress{Generation: generation, Converged: converged})
					progressCallback.Invoke(string(data))
				}
			})

			result := Result{History: history}
			if runErr != nil && !runner.IsCanceled(runErr) {
				result.Success = false
				result.Error = runErr.Error()
			} else {
				result.Success = true
				if len(history) > 0 {
					result.Generation = history[len(history)-1]
				}
				result.Converged = runErr == nil
			}

			data, err := json.Marshal(result)
			if err != nil {
				reject.Invoke(js.ValueOf(err.Error()))
				return
			}
			resolve.Invoke(js.ValueOf(string(data)))
		}()

		return nil
	})

	promiseConstructor := js.Global().Get("Promise")
	return promiseConstructor.New(handler)
}

// stopSimulation cancels any in-flight run.
func stopSimulation(this js.Value, args []js.Value) any {
	if cancelRun != nil {
		cancelRun()
	}
	return js.ValueOf(true)
}
