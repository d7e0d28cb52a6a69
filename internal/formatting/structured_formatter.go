package formatting

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"devstack/internal/config"
	"devstack/internal/orchestrator"
	"devstack/internal/scheduler"
)

// structuredFormatter writes machine-readable output. YAML goes through
// the JSON tags so both formats share field names.
type structuredFormatter struct {
	options Options
	marshal func(v interface{}) ([]byte, error)
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func marshalYAML(v interface{}) ([]byte, error) {
	return yaml.Marshal(v)
}

func (f *structuredFormatter) write(v interface{}) error {
	b, err := f.marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = f.options.Out.Write(b)
	return err
}

func (f *structuredFormatter) Report(r *scheduler.Report) error {
	return f.write(r)
}

func (f *structuredFormatter) Status(units []orchestrator.UnitStatus) error {
	if units == nil {
		units = []orchestrator.UnitStatus{}
	}
	return f.write(map[string]interface{}{"units": units})
}

func (f *structuredFormatter) Plan(p *orchestrator.Plan) error {
	return f.write(p)
}

func (f *structuredFormatter) Config(cfg *config.Config) error {
	return f.write(map[string]interface{}{"values": configEntries(cfg)})
}
