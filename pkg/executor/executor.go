// Package executor implements the Step Executor (spec §4.5): it drives the
// three WorkflowStep variants (cli/agent/conditional) against a read-only
// context snapshot and returns each step's output, or a *apperrors.AppError
// tagged with the right StepErrorKind on failure.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/google/uuid"
	tektonv1 "github.com/tektoncd/pipeline/pkg/apis/pipeline/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/incidentctl/controlplane/internal/apperrors"
	"github.com/incidentctl/controlplane/pkg/agent"
	"github.com/incidentctl/controlplane/pkg/model"
	"github.com/incidentctl/controlplane/pkg/template"
)

// CLIOutput is the `cli` step's declared output shape (spec §4.5).
type CLIOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	// TaskRunDescriptor is populated only under EXECUTION_MODE=kubernetes
	// (spec §6): a Tekton TaskRun shaped to run this step's command inside
	// the cluster's own sandbox. Submitting it to a cluster is deployment
	// tooling and out of scope (spec §1); building the descriptor is the
	// part this package owns. The step's command itself still runs in a
	// child process of the control plane, as it does in local mode.
	TaskRunDescriptor *tektonv1.TaskRun `json:"task_run_descriptor,omitempty"`
}

// ConditionalOutput is the `conditional` step's declared output shape.
type ConditionalOutput struct {
	Matched bool        `json:"matched"`
	Then    interface{} `json:"then,omitempty"`
}

// Executor drives one step to completion against a context snapshot.
type Executor struct {
	Agent *agent.Runtime
	// MaxContextTokens bounds agent-step conversations (spec §6
	// LLM_MAX_TOKENS); 0 disables truncation.
	MaxContextTokens int
	// KubernetesMode mirrors EXECUTION_MODE=kubernetes (spec §6): CLI steps
	// additionally build a Tekton TaskRun descriptor for cluster-sandboxed
	// execution, in addition to running in-process.
	KubernetesMode bool
	// CLIStepImage is the container image the TaskRun descriptor's step
	// runs, defaulting to a minimal shell image when unset.
	CLIStepImage string
	// DefaultMaxIterations/DefaultTimeout back-fill an agent step that
	// doesn't declare its own bound, matching spec §6's
	// AGENT_MAX_ITERATIONS/AGENT_TIMEOUT_SECONDS process-wide defaults.
	DefaultMaxIterations int
	DefaultTimeout       time.Duration
}

// New builds an Executor backed by the given Agent Runtime.
func New(agentRuntime *agent.Runtime) *Executor {
	return &Executor{Agent: agentRuntime}
}

// Run dispatches on step.Kind (spec §4.4 step 2c "Invoke the step executor
// with (step, snapshot)").
func (e *Executor) Run(ctx context.Context, runID uuid.UUID, step *model.WorkflowStep, snapshot map[string]interface{}) (interface{}, error) {
	switch step.Kind {
	case model.StepKindCLIStep:
		return e.runCLI(ctx, step.Name, step.CLI, snapshot)
	case model.StepKindAgentStep:
		return e.runAgent(ctx, runID, step.Agent, snapshot)
	case model.StepKindConditionalStep:
		return e.runConditional(ctx, runID, step.Name, step.Conditional, snapshot)
	default:
		return nil, apperrors.NewStepError(apperrors.StepKindCLI, step.Name, fmt.Errorf("unknown step kind %q", step.Kind))
	}
}

// runCLI implements spec §4.5's CLI step: render the command template, run
// it in its own process with the configured environment and timeout,
// capture stdout/stderr/exit code. A non-zero exit code is a step error,
// matching spec §4.5 "Exit code != 0 => step error".
func (e *Executor) runCLI(ctx context.Context, name string, spec *model.CLIStepSpec, snapshot map[string]interface{}) (*CLIOutput, error) {
	rendered, err := template.Render(spec.Command, snapshot)
	if err != nil {
		return nil, apperrors.NewStepError(apperrors.StepKindCLI, name, err)
	}

	args, err := shlex.Split(rendered)
	if err != nil {
		return nil, apperrors.NewStepError(apperrors.StepKindCLI, name, fmt.Errorf("parsing command %q: %w", rendered, err))
	}
	if len(args) == 0 {
		return nil, apperrors.NewStepError(apperrors.StepKindCLI, name, fmt.Errorf("empty command"))
	}

	cmdCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Env = envSlice(spec.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, apperrors.NewStepError(apperrors.StepKindTimeout, name, cmdCtx.Err())
	}
	if ctx.Err() == context.Canceled {
		return nil, apperrors.NewStepError(apperrors.StepKindCancelled, name, ctx.Err())
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, apperrors.NewStepError(apperrors.StepKindCLI, name, runErr)
		}
	}

	output := &CLIOutput{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}
	if e.KubernetesMode {
		output.TaskRunDescriptor = e.buildTaskRunDescriptor(name, args, spec.Env)
	}
	if exitCode != 0 {
		return output, apperrors.NewStepError(apperrors.StepKindCLI, name, fmt.Errorf("command exited %d: %s", exitCode, strings.TrimSpace(stderr.String())))
	}
	return output, nil
}

// buildTaskRunDescriptor shapes a Tekton TaskRun that would run this CLI
// step's already-tokenized command inside a single-step Task, for a
// cluster operator to submit under EXECUTION_MODE=kubernetes (spec §6,
// §4.5 sandbox isolation). The control plane never submits this itself.
func (e *Executor) buildTaskRunDescriptor(stepName string, args []string, env map[string]string) *tektonv1.TaskRun {
	image := e.CLIStepImage
	if image == "" {
		image = "alpine:3"
	}

	var command []string
	var cmdArgs []string
	if len(args) > 0 {
		command = args[:1]
		cmdArgs = args[1:]
	}

	envVars := make([]corev1.EnvVar, 0, len(env))
	for k, v := range env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	return &tektonv1.TaskRun{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: "step-" + stepName + "-",
		},
		Spec: tektonv1.TaskRunSpec{
			TaskSpec: &tektonv1.TaskSpec{
				Steps: []tektonv1.Step{
					{
						Name:    stepName,
						Image:   image,
						Command: command,
						Args:    cmdArgs,
						Env:     envVars,
					},
				},
			},
		},
	}
}

// runAgent delegates to the Agent Runtime with the step's investigation
// goal, rendered against the context snapshot so a goal template like
// "Investigate {{ .steps.classify.label }}" resolves before the agent ever
// sees it (spec §4.5 "Agent step: delegate to Agent Runtime with {goal,
// tools, max_iterations, timeout, approval_required}").
func (e *Executor) runAgent(ctx context.Context, runID uuid.UUID, spec *model.AgentStepSpec, snapshot map[string]interface{}) (*model.AgentOutput, error) {
	goal, err := template.Render(spec.Goal, snapshot)
	if err != nil {
		return nil, apperrors.NewStepError(apperrors.StepKindAgent, "agent", err)
	}

	maxIterations := spec.MaxIterations
	if maxIterations == 0 {
		maxIterations = e.DefaultMaxIterations
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}

	out, err := e.Agent.Handle(ctx, runID, model.AgentInput{
		Kind:    model.AgentInputInvestigationGoal,
		Goal:    goal,
		Context: snapshot,
	}, agent.Options{
		MaxIterations:    maxIterations,
		Timeout:          timeout,
		ApprovalRequired: spec.ApprovalRequired,
		ToolNames:        spec.Tools,
		MaxContextSize:   e.MaxContextTokens,
	})
	if err != nil {
		return nil, apperrors.NewStepError(apperrors.StepKindAgent, "agent", err)
	}
	return &out, nil
}

// runConditional implements spec §4.5's conditional step: parse `<path>
// <op> <literal>`, resolve path against the snapshot via the template
// renderer, compare as strings, and optionally run a then_agent sub-step
// in-line when matched.
func (e *Executor) runConditional(ctx context.Context, runID uuid.UUID, name string, spec *model.ConditionalStepSpec, snapshot map[string]interface{}) (*ConditionalOutput, error) {
	matched, err := evaluateCondition(spec.Condition, snapshot)
	if err != nil {
		return nil, apperrors.NewStepError(apperrors.StepKindCLI, name, err)
	}

	out := &ConditionalOutput{Matched: matched}
	if matched && spec.ThenAgent != nil {
		agentOut, err := e.runAgent(ctx, runID, spec.ThenAgent, snapshot)
		if err != nil {
			return nil, err
		}
		out.Then = agentOut
	}
	return out, nil
}

// evaluateCondition parses and resolves a `<path> <op> <literal>` condition
// (spec §4.5). The path is resolved by wrapping it in `{{ }}` and deferring
// to the template renderer, so path resolution semantics (missing/null =>
// empty string) stay identical across conditional steps and template
// outputs.
func evaluateCondition(condition string, snapshot map[string]interface{}) (bool, error) {
	op, opIndex := findOp(condition)
	if op == "" {
		return false, fmt.Errorf("condition %q must contain == or !=", condition)
	}

	path := strings.TrimSpace(condition[:opIndex])
	literal := strings.TrimSpace(condition[opIndex+len(op):])
	literal = strings.Trim(literal, `"'`)

	resolved, err := template.Render("{{ "+path+" }}", snapshot)
	if err != nil {
		return false, fmt.Errorf("resolving condition path %q: %w", path, err)
	}

	switch op {
	case "==":
		return resolved == literal, nil
	case "!=":
		return resolved != literal, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func findOp(condition string) (op string, index int) {
	if i := strings.Index(condition, "=="); i >= 0 {
		return "==", i
	}
	if i := strings.Index(condition, "!="); i >= 0 {
		return "!=", i
	}
	return "", -1
}

// envSlice layers the step's configured environment on top of the
// executor process's own environment, so a CLI step can reach kubeconfig,
// PATH, and other ambient settings without every workflow re-declaring
// them.
func envSlice(env map[string]string) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
