package hierarchy

import (
	"context"
	"sync"
)

// StaticDirectory is an in-memory Directory for tests and single-box
// development deployments without a database.
type StaticDirectory struct {
	mu       sync.RWMutex
	rosters  map[string][]string // managerID -> commercial ids
	managers map[string]string   // commercialID -> managerID
	names    map[string]string   // commercialID -> display name
}

// NewStatic creates an empty static directory.
func NewStatic() *StaticDirectory {
	return &StaticDirectory{
		rosters:  make(map[string][]string),
		managers: make(map[string]string),
		names:    make(map[string]string),
	}
}

// Assign places a commercial under a manager.
func (d *StaticDirectory) Assign(managerID, commercialID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.managers[commercialID]; ok && prev != managerID {
		roster := d.rosters[prev]
		for i, id := range roster {
			if id == commercialID {
				d.rosters[prev] = append(roster[:i], roster[i+1:]...)
				break
			}
		}
	}
	d.managers[commercialID] = managerID
	d.names[commercialID] = name

	for _, id := range d.rosters[managerID] {
		if id == commercialID {
			return
		}
	}
	d.rosters[managerID] = append(d.rosters[managerID], commercialID)
}

// Remove detaches a commercial from its manager.
func (d *StaticDirectory) Remove(commercialID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	managerID, ok := d.managers[commercialID]
	if !ok {
		return
	}
	delete(d.managers, commercialID)
	roster := d.rosters[managerID]
	for i, id := range roster {
		if id == commercialID {
			d.rosters[managerID] = append(roster[:i], roster[i+1:]...)
			return
		}
	}
}

func (d *StaticDirectory) Roster(_ context.Context, managerID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.rosters[managerID]...), nil
}

func (d *StaticDirectory) IsUnderManager(_ context.Context, managerID, commercialID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.managers[commercialID] == managerID, nil
}

func (d *StaticDirectory) CommercialManagerID(_ context.Context, commercialID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	managerID, ok := d.managers[commercialID]
	if !ok {
		return "", ErrNotFound
	}
	return managerID, nil
}

func (d *StaticDirectory) CommercialName(_ context.Context, commercialID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[commercialID]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}
