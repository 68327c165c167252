package binary

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ConfigSpanAttrs mirrors persistor.ConfigSpan for encode/decode at this
// layer, keeping the binary package free of a dependency on the persistor
// package (it is imported the other way around).
type ConfigSpanAttrs struct {
	Index            int
	StartTimeSeconds float64
	TimeSpanSeconds  float64
	Nodes            map[string]map[string]any
}

const spansGroupName = "dataConfigurationSpans"

// WriteSpans (re)writes the fixed subgroup layout for an IO entity's
// configuration spans: a "dataConfigurationSpans" subgroup containing
// span_0, span_1, … children, each with an
// index/startTimeSeconds/timeSpanSeconds attribute triad and one subgroup
// per pipeline node holding that node's configuration map as attributes.
func (s *Store) WriteSpans(ownerID string, spans []ConfigSpanAttrs) error {
	groupID, err := s.lazyChild(ownerID, "group", spansGroupName)
	if err != nil {
		return err
	}
	existing, err := s.Children(groupID)
	if err != nil {
		return err
	}
	for _, child := range existing {
		if err := s.DeleteNode(child.ID); err != nil {
			return err
		}
	}
	for _, span := range spans {
		spanID := uuid.NewString()
		name := fmt.Sprintf("span_%d", span.Index)
		if err := s.CreateGroup(spanID, &groupID, "span", name); err != nil {
			return err
		}
		if err := s.SetAttribute(spanID, "index", span.Index); err != nil {
			return err
		}
		if err := s.SetAttribute(spanID, "startTimeSeconds", span.StartTimeSeconds); err != nil {
			return err
		}
		if err := s.SetAttribute(spanID, "timeSpanSeconds", span.TimeSpanSeconds); err != nil {
			return err
		}
		for nodeName, attrs := range span.Nodes {
			nodeID := uuid.NewString()
			if err := s.CreateGroup(nodeID, &spanID, "node", nodeName); err != nil {
				return err
			}
			for key, value := range attrs {
				if err := s.SetAttribute(nodeID, key, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ReadSpans loads ownerID's configuration spans, sorted by index ascending.
// Returns an empty slice if no spans were ever written — the
// "dataConfigurationSpans" subgroup itself is created lazily, on first
// write.
func (s *Store) ReadSpans(ownerID string) ([]ConfigSpanAttrs, error) {
	groupID, ok, err := s.findChild(ownerID, spansGroupName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	spanNodes, err := s.Children(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]ConfigSpanAttrs, 0, len(spanNodes))
	for _, sn := range spanNodes {
		var span ConfigSpanAttrs
		if _, err := s.GetAttribute(sn.ID, "index", &span.Index); err != nil {
			return nil, err
		}
		if _, err := s.GetAttribute(sn.ID, "startTimeSeconds", &span.StartTimeSeconds); err != nil {
			return nil, err
		}
		if _, err := s.GetAttribute(sn.ID, "timeSpanSeconds", &span.TimeSpanSeconds); err != nil {
			return nil, err
		}
		nodeChildren, err := s.Children(sn.ID)
		if err != nil {
			return nil, err
		}
		if len(nodeChildren) > 0 {
			span.Nodes = make(map[string]map[string]any, len(nodeChildren))
			for _, nc := range nodeChildren {
				raws, err := s.Attributes(nc.ID)
				if err != nil {
					return nil, err
				}
				attrs := make(map[string]any, len(raws))
				for k, raw := range raws {
					var v any
					if err := json.Unmarshal(raw, &v); err != nil {
						return nil, err
					}
					attrs[k] = v
				}
				span.Nodes[nc.Name] = attrs
			}
		}
		out = append(out, span)
	}
	sortSpansByIndex(out)
	return out, nil
}

// lazyChild returns the id of parentID's child named name, creating it
// (with the given kind) on first call.
func (s *Store) lazyChild(parentID, kind, name string) (string, error) {
	id, ok, err := s.findChild(parentID, name)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.CreateGroup(id, &parentID, kind, name); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) findChild(parentID, name string) (string, bool, error) {
	children, err := s.Children(parentID)
	if err != nil {
		return "", false, err
	}
	for _, c := range children {
		if c.Name == name {
			return c.ID, true, nil
		}
	}
	return "", false, nil
}

func sortSpansByIndex(spans []ConfigSpanAttrs) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Index < spans[j-1].Index; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}
