package specialist

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// validToolName keeps names usable as function names in model tool schemas.
func validToolName(fl validator.FieldLevel) bool {
	return toolNamePattern.MatchString(fl.Field().String())
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("toolname", validToolName); err != nil {
		panic(fmt.Sprintf("register toolname validation: %v", err))
	}
	return v
}

// Registry maps tool names to specialist endpoints. Reads take the shared
// lock; registration and health updates take it exclusively.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]contractx.AgentEndpoint
	validate  *validator.Validate
}

var _ contractx.Registry = (*Registry)(nil)

func NewRegistry(endpoints ...contractx.AgentEndpoint) (*Registry, error) {
	r := &Registry{
		endpoints: make(map[string]contractx.AgentEndpoint, len(endpoints)),
		validate:  newValidator(),
	}
	for _, ep := range endpoints {
		if err := r.Register(ep); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces an endpoint. Health starts unknown.
func (r *Registry) Register(ep contractx.AgentEndpoint) error {
	ep.Name = strings.TrimSpace(ep.Name)
	ep.Address = strings.TrimSpace(ep.Address)
	ep.HealthURL = strings.TrimSpace(ep.HealthURL)

	if err := r.validate.Struct(ep); err != nil {
		return fmt.Errorf("%w: agent endpoint %q: %v", contractx.ErrValidation, ep.Name, err)
	}
	if err := r.validate.Var(ep.Name, "toolname"); err != nil {
		return fmt.Errorf("%w: agent name %q is not a valid tool name", contractx.ErrValidation, ep.Name)
	}
	ep.Health = contractx.HealthUnknown

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.Name] = ep
	return nil
}

func (r *Registry) Resolve(name string) (contractx.AgentEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[strings.TrimSpace(name)]
	if !ok {
		return contractx.AgentEndpoint{}, fmt.Errorf("%w: %s", contractx.ErrToolNotFound, name)
	}
	return ep, nil
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Endpoints returns a snapshot of all endpoints sorted by name.
func (r *Registry) Endpoints() []contractx.AgentEndpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contractx.AgentEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	slices.SortFunc(out, func(a, b contractx.AgentEndpoint) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// SetHealth records the last observed health of name. Unknown names are ignored.
func (r *Registry) SetHealth(name string, health contractx.HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[name]
	if !ok || ep.Health == health {
		return
	}
	ep.Health = health
	r.endpoints[name] = ep
}

// IsReady reports whether at least one endpoint is registered.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints) > 0
}

// Tools renders every endpoint as a model tool schema, sorted by name.
func (r *Registry) Tools() []*schema.ToolInfo {
	eps := r.Endpoints()
	infos := make([]*schema.ToolInfo, 0, len(eps))
	for _, ep := range eps {
		infos = append(infos, toolInfo(ep))
	}
	return infos
}

func toolInfo(ep contractx.AgentEndpoint) *schema.ToolInfo {
	desc := strings.TrimSpace(ep.Description)
	if desc == "" {
		desc = "Delegate to the " + ep.Name + " specialist agent."
	}
	info := &schema.ToolInfo{
		Name: ep.Name,
		Desc: desc,
	}
	if len(ep.Params) == 0 {
		return info
	}

	params := make(map[string]*schema.ParameterInfo, len(ep.Params))
	for name, spec := range ep.Params {
		params[name] = &schema.ParameterInfo{
			Type:     dataType(spec.Type),
			Desc:     spec.Desc,
			Required: spec.Required,
		}
	}
	info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	return info
}

func dataType(t string) schema.DataType {
	switch t {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "object":
		return schema.Object
	case "array":
		return schema.Array
	default:
		return schema.String
	}
}
