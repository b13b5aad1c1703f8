package host

import (
	"time"

	"github.com/opentalon/funchost/internal/description"
)

// Snapshot is the serializable form of a Registration used by the
// registration log and the redis mirror.
type Snapshot struct {
	Name        string                            `json:"name"`
	ID          string                            `json:"id"`
	Generation  int                               `json:"generation"`
	ScriptPath  string                            `json:"script"`
	TriggerType string                            `json:"trigger"`
	Parameters  []description.ParameterDescriptor `json:"parameters"`
	ResolvedAt  time.Time                         `json:"resolvedAt"`
}

func (r Registration) Snapshot() Snapshot {
	s := Snapshot{
		Name:        r.Name(),
		ID:          r.ID,
		Generation:  r.Generation,
		TriggerType: string(r.Descriptor.Trigger().Type),
		Parameters:  r.Descriptor.Parameters,
		ResolvedAt:  r.ResolvedAt.UTC(),
	}
	if r.Descriptor.Invoker != nil {
		s.ScriptPath = r.Descriptor.Invoker.ScriptPath()
	}
	return s
}
