package logquery

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"sentinel.app/relay/internal/model"
)

var ErrUnsupportedCategory = errors.New("unsupported service type")

// Template describes how to find one category's logs.
// Variants are label matches ordered most specific first; they may reference
// {service_name} and {project_id}.
type Template struct {
	ResourceType string
	Variants     []string
	// Escalate allows widening the default window once when nothing matched.
	Escalate bool
}

// Table maps categories to their filter templates.
type Table map[model.Category]Template

// DefaultTable returns the built-in categories. The returned table is a copy
// and may be extended by the caller.
func DefaultTable() Table {
	return Table{
		model.CategoryCloudRun: {
			ResourceType: "cloud_run_revision",
			Variants: []string{
				`resource.labels.service_name = "{service_name}"`,
				`resource.labels.configuration_name = "{service_name}"`,
			},
			Escalate: true,
		},
		model.CategoryCloudBuild: {
			ResourceType: "build",
			Variants: []string{
				`resource.labels.build_id = "{service_name}"`,
				`resource.labels.build_trigger_id = "{service_name}"`,
				`logName="projects/{project_id}/logs/cloudbuild"`,
			},
			Escalate: true,
		},
		model.CategoryCloudFunctions: {
			ResourceType: "cloud_function",
			Variants: []string{
				`resource.labels.function_name = "{service_name}"`,
			},
			Escalate: true,
		},
		model.CategoryGCE: {
			ResourceType: "gce_instance",
			Variants: []string{
				`resource.labels.instance_id = "{service_name}"`,
				`labels.instance_name = "{service_name}"`,
			},
			Escalate: true,
		},
		model.CategoryGKE: {
			ResourceType: "k8s_container",
			Variants: []string{
				`resource.labels.cluster_name = "{service_name}"`,
				`resource.labels.namespace_name = "{service_name}"`,
				`resource.labels.pod_name = "{service_name}"`,
			},
			Escalate: true,
		},
		model.CategoryAppEngine: {
			ResourceType: "gae_app",
			Variants: []string{
				`resource.labels.module_id = "{service_name}"`,
				`resource.labels.version_id = "{service_name}"`,
			},
			Escalate: true,
		},
	}
}

func (t Table) Lookup(category model.Category) (Template, error) {
	tmpl, ok := t[category]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedCategory, category,
			strings.Join(t.categoryNames(), ", "))
	}
	return tmpl, nil
}

// Categories lists the table's categories in a stable order.
func (t Table) Categories() []model.Category {
	out := make([]model.Category, 0, len(t))
	for c := range t {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (t Table) categoryNames() []string {
	cats := t.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return names
}

// Filters substitutes name and project into every variant and scopes each
// one to the resource type and window. Order follows Variants.
// Callers must sanitize name and project first.
func (t Template) Filters(name, project string, w Window) []string {
	r := strings.NewReplacer("{service_name}", name, "{project_id}", project)
	filters := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		filters[i] = fmt.Sprintf(`resource.type = "%s" AND %s AND %s`, t.ResourceType, r.Replace(v), w.clause())
	}
	return filters
}
