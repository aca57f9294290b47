package specialist

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

func weatherEndpoint() contractx.AgentEndpoint {
	return contractx.AgentEndpoint{
		Name:        "get_weather",
		Address:     "http://weather.local/invoke",
		Description: "Current weather for a city.",
		Params: map[string]contractx.ParamSpec{
			"city": {Type: "string", Desc: "City name", Required: true},
			"days": {Type: "integer", Desc: "Forecast days"},
		},
	}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(weatherEndpoint())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	ep, err := reg.Resolve("get_weather")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ep.Address != "http://weather.local/invoke" {
		t.Fatalf("Resolve().Address = %q", ep.Address)
	}
	if ep.Health != contractx.HealthUnknown {
		t.Fatalf("Resolve().Health = %q, want unknown", ep.Health)
	}

	_, err = reg.Resolve("book_flight")
	if !errors.Is(err, contractx.ErrToolNotFound) {
		t.Fatalf("Resolve(unknown) error = %v, want ErrToolNotFound", err)
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(weatherEndpoint())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	reg.SetHealth("get_weather", contractx.HealthHealthy)

	replacement := weatherEndpoint()
	replacement.Address = "http://weather-v2.local/invoke"
	if err := reg.Register(replacement); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ep, _ := reg.Resolve("get_weather")
	if ep.Address != "http://weather-v2.local/invoke" {
		t.Fatalf("Address = %q, want replacement", ep.Address)
	}
	if ep.Health != contractx.HealthUnknown {
		t.Fatalf("Health = %q, want reset to unknown", ep.Health)
	}
	if got := reg.List(); len(got) != 1 {
		t.Fatalf("List() = %v, want one entry", got)
	}
}

func TestRegistryRejectsInvalidEndpoints(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	cases := []contractx.AgentEndpoint{
		{Name: "", Address: "http://a.local"},
		{Name: "ok", Address: ""},
		{Name: "ok", Address: "not a url"},
		{Name: "has space", Address: "http://a.local"},
		{Name: "ok", Address: "http://a.local", HealthURL: "nope"},
		{Name: "ok", Address: "http://a.local", Params: map[string]contractx.ParamSpec{"x": {Type: "date"}}},
	}
	for _, ep := range cases {
		if err := reg.Register(ep); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("Register(%+v) error = %v, want ErrValidation", ep, err)
		}
	}
	if reg.IsReady() {
		t.Fatal("IsReady() = true after only invalid registrations")
	}
}

func TestRegistryListSortedAndReady(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if reg.IsReady() {
		t.Fatal("empty registry reports ready")
	}

	for _, name := range []string{"search_accommodation", "get_weather", "convert_currency"} {
		if err := reg.Register(contractx.AgentEndpoint{Name: name, Address: "http://" + name + ".local"}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}
	want := []string{"convert_currency", "get_weather", "search_accommodation"}
	if got := reg.List(); !slices.Equal(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	if !reg.IsReady() {
		t.Fatal("IsReady() = false with registered endpoints")
	}
}

func TestRegistrySetHealthIgnoresUnknown(t *testing.T) {
	t.Parallel()

	reg, _ := NewRegistry(weatherEndpoint())
	reg.SetHealth("missing", contractx.HealthHealthy)
	reg.SetHealth("get_weather", contractx.HealthUnreachable)

	ep, _ := reg.Resolve("get_weather")
	if ep.Health != contractx.HealthUnreachable {
		t.Fatalf("Health = %q, want unreachable", ep.Health)
	}
	if len(reg.List()) != 1 {
		t.Fatal("SetHealth registered an unknown name")
	}
}

func TestRegistryTools(t *testing.T) {
	t.Parallel()

	reg, _ := NewRegistry(weatherEndpoint(), contractx.AgentEndpoint{Name: "ping", Address: "http://ping.local"})
	tools := reg.Tools()
	if len(tools) != 2 {
		t.Fatalf("Tools() len = %d, want 2", len(tools))
	}
	if tools[0].Name != "get_weather" || tools[1].Name != "ping" {
		t.Fatalf("Tools() order = %s, %s", tools[0].Name, tools[1].Name)
	}
	if tools[0].ParamsOneOf == nil {
		t.Fatal("get_weather tool has no params")
	}
	if tools[1].ParamsOneOf != nil {
		t.Fatal("ping tool should have no params")
	}
	if tools[1].Desc == "" {
		t.Fatal("ping tool should get a default description")
	}
}

func TestDataType(t *testing.T) {
	t.Parallel()

	cases := map[string]schema.DataType{
		"":        schema.String,
		"string":  schema.String,
		"integer": schema.Integer,
		"number":  schema.Number,
		"boolean": schema.Boolean,
		"object":  schema.Object,
		"array":   schema.Array,
	}
	for in, want := range cases {
		if got := dataType(in); got != want {
			t.Fatalf("dataType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg, _ := NewRegistry(weatherEndpoint())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = reg.Resolve("get_weather")
			_ = reg.Tools()
		}()
		go func() {
			defer wg.Done()
			reg.SetHealth("get_weather", contractx.HealthHealthy)
		}()
	}
	wg.Wait()
}
