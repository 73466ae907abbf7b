package repofakes

import (
	"sync"

	"github.com/centrid/go-identity-server/apps"
)

var _ apps.Repo = (*FakeAppRepo)(nil)

// FakeAppRepo is an in-memory application registry for tests.
type FakeAppRepo struct {
	lock         sync.RWMutex
	applications map[string]*apps.Application
}

func NewFakeAppRepo() *FakeAppRepo {
	return &FakeAppRepo{applications: make(map[string]*apps.Application)}
}

// Upsert stores an application keyed by its client code.
func (r *FakeAppRepo) Upsert(app *apps.Application) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.applications[app.Code] = app
	return nil
}

func (r *FakeAppRepo) GetByCode(code string) (*apps.Application, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	app, ok := r.applications[code]
	if !ok {
		return nil, apps.ErrApplicationNotFound
	}
	return app, nil
}
