package domain

import (
	"fmt"
	"time"
)

type DatasetStatus string

const (
	DatasetLoaded   DatasetStatus = "loaded"
	DatasetChanged  DatasetStatus = "changed"
	DatasetReleased DatasetStatus = "released"
)

type DatasetTransition struct {
	From DatasetStatus `json:"from"`
	To   DatasetStatus `json:"to"`
	At   time.Time     `json:"at"`
}

// Dataset tracks one batch of source records through loaded -> changed -> released.
// Transitions cannot be skipped or reversed.
type Dataset struct {
	Name    string
	Records []Record

	status  DatasetStatus
	history []DatasetTransition
}

func NewDataset(name string, records []Record) *Dataset {
	return &Dataset{
		Name:    name,
		Records: records,
		status:  DatasetLoaded,
	}
}

func (d *Dataset) Status() DatasetStatus {
	return d.status
}

func (d *Dataset) History() []DatasetTransition {
	out := make([]DatasetTransition, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Dataset) Transition(to DatasetStatus) error {
	if next, ok := nextDatasetStatus(d.status); !ok || next != to {
		return WrapError(ErrInvalidTransition, "dataset "+d.Name, fmt.Errorf("%s -> %s", d.status, to))
	}
	d.history = append(d.history, DatasetTransition{From: d.status, To: to, At: time.Now().UTC()})
	d.status = to
	return nil
}

func nextDatasetStatus(from DatasetStatus) (DatasetStatus, bool) {
	switch from {
	case DatasetLoaded:
		return DatasetChanged, true
	case DatasetChanged:
		return DatasetReleased, true
	default:
		return "", false
	}
}
