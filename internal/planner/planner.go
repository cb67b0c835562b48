// Package planner turns a stack manifest plus caller-supplied variable
// overrides into a deterministic, topologically-ordered DeploymentPlan.
package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wiesenwischer/readystackgo/internal/ids"
	"github.com/wiesenwischer/readystackgo/internal/stacksource"
	"github.com/wiesenwischer/readystackgo/internal/variables"
)

// Warning is a non-fatal planning issue (missing dependency, cycle) that
// does not prevent a plan from being produced.
type Warning string

// NetworkSpec is a network a deployment must ensure exists.
type NetworkSpec struct {
	Name     string
	External bool
}

// VolumeSpec is a named volume a deployment references.
type VolumeSpec struct {
	Name     string
	External bool
}

// Step is one container to create, in execution order.
type Step struct {
	ContextName   string
	Image         string
	Version       string
	ContainerName string
	Internal      bool
	EnvVars       map[string]string
	Ports         []string // "host:container[/proto]"
	Volumes       map[string]string
	Networks      []string
	DependsOn     []string
	Lifecycle     string // "init" or "service"
	Order         int
}

// DeploymentPlan is the fully resolved, ordered set of work an executor
// replays to bring a stack to the desired state.
type DeploymentPlan struct {
	StackVersion  string
	StackName     string
	EnvironmentID ids.EnvironmentID
	GlobalEnvVars map[string]string
	Networks      []NetworkSpec
	Volumes       []VolumeSpec
	Steps         []Step
}

// Input bundles everything Plan needs. OrganizationID/Name feed the
// RSGO_ORG_* globals; FeatureOverrides take precedence over the manifest's
// own feature-flag defaults ("config wins").
type Input struct {
	Stack             stacksource.StackDefinition
	StackName         string
	EnvironmentID     ids.EnvironmentID
	OrganizationID    ids.OrganizationID
	OrganizationName  string
	VariableOverrides map[string]string
	FeatureOverrides  map[string]bool
}

// Plan builds a deterministic DeploymentPlan from in. Two calls with
// identical inputs always produce byte-equal plans.
func Plan(in Input) (DeploymentPlan, []Warning) {
	stackName := sanitizeStackName(in.StackName)
	vars := mergeVariables(in.Stack.Variables, in.VariableOverrides)

	plan := DeploymentPlan{
		StackVersion:  in.Stack.Version,
		StackName:     stackName,
		EnvironmentID: in.EnvironmentID,
		GlobalEnvVars: globals(in, stackName),
	}

	volumeRename := make(map[string]string, len(in.Stack.Volumes))
	for _, v := range in.Stack.Volumes {
		name := v.Name
		if !v.External {
			name = stackName + "_" + v.Name
		}
		plan.Volumes = append(plan.Volumes, VolumeSpec{Name: name, External: v.External})
		volumeRename[v.Name] = name
	}

	networkRename := make(map[string]string, len(in.Stack.Networks))
	for _, n := range in.Stack.Networks {
		name := n.Name
		if !n.External {
			name = stackName + "_" + n.Name
		}
		plan.Networks = append(plan.Networks, NetworkSpec{Name: name, External: n.External})
		networkRename[n.Name] = name
	}

	steps := make(map[string]Step, len(in.Stack.Services))
	var warnings []Warning
	for _, svc := range in.Stack.Services {
		steps[svc.ContextName] = buildStep(svc, stackName, vars, volumeRename, networkRename)
	}

	order, orderWarnings := topoOrder(in.Stack.Services, in.Stack.GatewayContext)
	warnings = append(warnings, orderWarnings...)

	for i, contextName := range order {
		step := steps[contextName]
		step.Order = i
		plan.Steps = append(plan.Steps, step)
	}

	return plan, warnings
}

func sanitizeStackName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// mergeVariables resolves manifest defaults against overrides into a flat
// map suitable for variables.Resolve; overrides win over the default.
func mergeVariables(declared []stacksource.Variable, overrides map[string]string) map[string]string {
	vars := make(map[string]string, len(declared))
	for _, v := range declared {
		vars[v.Name] = v.Default
	}
	for k, v := range overrides {
		vars[k] = v
	}
	return vars
}

func globals(in Input, stackName string) map[string]string {
	g := map[string]string{
		"RSGO_ORG_ID":      in.OrganizationID.String(),
		"RSGO_ORG_NAME":    in.OrganizationName,
		"RSGO_STACK_VERSION": in.Stack.Version,
	}
	for _, f := range in.Stack.FeatureFlags {
		value := f.Default
		if override, ok := in.FeatureOverrides[f.Name]; ok {
			value = override
		}
		g["RSGO_FEATURE_"+f.Name] = strconv.FormatBool(value)
	}
	_ = stackName
	return g
}

func buildStep(svc stacksource.ServiceDefinition, stackName string, vars map[string]string, volumeRename, networkRename map[string]string) Step {
	resolve := func(s string) string { return variables.Resolve(s, vars) }

	containerName := svc.ContainerName
	if containerName == "" {
		containerName = stackName + "_" + svc.ContextName
	} else {
		containerName = resolve(containerName)
	}

	envVars := make(map[string]string, len(svc.EnvVars))
	for k, v := range svc.EnvVars {
		envVars[k] = resolve(v)
	}

	var ports []string
	for _, p := range svc.Ports {
		host := resolve(p.Host)
		container := resolve(p.Container)
		flat := host + ":" + container
		if p.Protocol != "" {
			flat += "/" + p.Protocol
		}
		ports = append(ports, flat)
	}

	vols := make(map[string]string, len(svc.Volumes))
	for src, dst := range svc.Volumes {
		vols[renameVolumeRef(resolve(src), stackName, volumeRename)] = resolve(dst)
	}

	var networks []string
	for _, n := range svc.Networks {
		if renamed, ok := networkRename[n]; ok {
			networks = append(networks, renamed)
		} else {
			networks = append(networks, n)
		}
	}

	lifecycle := svc.Lifecycle
	if lifecycle == "" {
		lifecycle = "service"
	}

	return Step{
		ContextName:   svc.ContextName,
		Image:         resolve(svc.Image),
		Version:       resolve(svc.Version),
		ContainerName: containerName,
		Internal:      len(ports) == 0,
		EnvVars:       envVars,
		Ports:         ports,
		Volumes:       vols,
		Networks:      networks,
		DependsOn:     append([]string(nil), svc.DependsOn...),
		Lifecycle:     lifecycle,
	}
}

// renameVolumeRef applies the stack-prefix rule to a named-volume
// reference, leaving absolute paths, relative paths, and bind specs
// (anything containing ':') unchanged.
func renameVolumeRef(ref, stackName string, renamed map[string]string) string {
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./") || strings.Contains(ref, ":") {
		return ref
	}
	if r, ok := renamed[ref]; ok {
		return r
	}
	return stackName + "_" + ref
}

// topoOrder runs Kahn's algorithm over the declared dependsOn edges,
// breaking ties by sorted contextName for determinism. A cycle or a
// dependency on an undeclared service degrades to the declared order for
// the unprocessed remainder, with a warning. gatewayContext, if set, is
// excluded from the graph entirely and appended last.
func topoOrder(services []stacksource.ServiceDefinition, gatewayContext string) ([]string, []Warning) {
	var warnings []Warning

	declared := make([]string, 0, len(services))
	known := make(map[string]bool, len(services))
	for _, svc := range services {
		if svc.ContextName == gatewayContext && gatewayContext != "" {
			continue
		}
		declared = append(declared, svc.ContextName)
		known[svc.ContextName] = true
	}

	adj := make(map[string][]string, len(declared)) // node -> dependents
	inDegree := make(map[string]int, len(declared))
	for _, name := range declared {
		inDegree[name] = 0
	}

	for _, svc := range services {
		if svc.ContextName == gatewayContext && gatewayContext != "" {
			continue
		}
		for _, dep := range svc.DependsOn {
			if !known[dep] {
				warnings = append(warnings, Warning(fmt.Sprintf("service %q depends on undeclared service %q", svc.ContextName, dep)))
				continue
			}
			adj[dep] = append(adj[dep], svc.ContextName)
			inDegree[svc.ContextName]++
		}
	}

	var queue []string
	for _, name := range declared {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var result []string
	processed := make(map[string]bool, len(declared))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)
		processed[node] = true

		dependents := append([]string(nil), adj[node]...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(declared) {
		warnings = append(warnings, Warning("dependency cycle detected; remaining services scheduled in declared order"))
		for _, name := range declared {
			if !processed[name] {
				result = append(result, name)
			}
		}
	}

	if gatewayContext != "" {
		result = append(result, gatewayContext)
	}

	return result, warnings
}
