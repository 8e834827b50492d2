package main

import (
	"encoding/json"
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.helios.BPMS"
	dbusPath = "/org/helios/BPMS"
)

type service struct {
	ctrl *controller
}

func startService(ctrl *controller) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := service{ctrl: ctrl}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Status returns a JSON snapshot of the most recent control cycle.
func (s service) Status() (string, *dbus.Error) {
	data, err := json.Marshal(s.ctrl.Snapshot())
	if err != nil {
		return "", dbus.NewError(dbusName+".StatusError", nil)
	}
	return string(data), nil
}

// DischargeMasks returns the Lower and Upper group masks from the most
// recent cycle.
func (s service) DischargeMasks() (uint8, uint8, *dbus.Error) {
	lower, upper := s.ctrl.DischargeMasks()
	return lower, upper, nil
}

// SetBalancing turns cell balancing on or off. While off the controller
// holds both discharge masks at zero.
func (s service) SetBalancing(enabled bool) *dbus.Error {
	s.ctrl.SetBalancing(enabled)
	return nil
}

func (s service) IsBalancing() (bool, *dbus.Error) {
	return s.ctrl.IsBalancing(), nil
}
