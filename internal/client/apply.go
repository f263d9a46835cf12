package client

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/render"
)

// Commands sent on connect, matching the scene environment template.
var initialEnvironment = []string{"set bgColor white", "lighting full"}

const initialEnvironmentKey = "#FFFFFF|full"

// appliedState is what the renderer currently shows, keyed so that only
// changes produce commands.
type appliedState struct {
	models      map[string][]*render.Model // data id -> opened models
	colors      map[string]string          // id|selection -> color
	styles      map[string]string          // id|selection -> style
	environment string
	focus       string
}

func (a *appliedState) reset() {
	a.models = make(map[string][]*render.Model)
	a.colors = make(map[string]string)
	a.styles = make(map[string]string)
	a.environment = initialEnvironmentKey
	a.focus = ""
}

func mapDefaults(m *render.Model) []string {
	return []string{
		fmt.Sprintf("volume %s rmsLevel 2.5", m.Spec()),
		fmt.Sprintf("transparency %s 60", m.Spec()),
	}
}

func specs(opened []*render.Model, selection string) string {
	parts := make([]string, 0, len(opened))
	for _, m := range opened {
		parts = append(parts, m.Spec()+selection)
	}
	return strings.Join(parts, " ")
}

func (e *Engine) applyLocked(sc models.Scene, run func(string) error) error {
	for _, c := range sc.Colors() {
		id, sel := c.ID(), c.String("selection")
		color := c.String("color")
		if color == "" {
			continue
		}
		key := id + "|" + sel
		if e.applied.colors[key] == color {
			continue
		}
		opened, ok := e.applied.models[id]
		if !ok {
			continue
		}
		if err := run(fmt.Sprintf("color %s %s", specs(opened, sel), color)); err != nil {
			return err
		}
		e.applied.colors[key] = color
	}

	for _, s := range sc.Styles() {
		id, sel := s.ID(), s.String("selection")
		style := s.String("style")
		if style == "" {
			continue
		}
		key := id + "|" + sel
		if e.applied.styles[key] == style {
			continue
		}
		opened, ok := e.applied.models[id]
		if !ok {
			continue
		}
		cmd := fmt.Sprintf("style %s %s", specs(opened, sel), style)
		if style == "cartoon" {
			cmd = "cartoon " + specs(opened, sel)
		}
		if err := run(cmd); err != nil {
			return err
		}
		e.applied.styles[key] = style
	}

	if env := sc.Environment(); env != nil {
		bg, lighting := env.String("background_color"), env.String("lighting")
		if key := bg + "|" + lighting; key != e.applied.environment {
			if bg != "" {
				if err := run("set bgColor " + bg); err != nil {
					return err
				}
			}
			if lighting != "" {
				if err := run("lighting " + lighting); err != nil {
					return err
				}
			}
			e.applied.environment = key
		}
	}

	return e.applyFocusLocked(sc.Focus(), run)
}

func (e *Engine) applyFocusLocked(focus models.Payload, run func(string) error) error {
	key := models.Fingerprint(focus)
	if key == e.applied.focus {
		return nil
	}

	// recorded only once the focus is on screen
	if id := focus.ID(); id != "" {
		opened, ok := e.applied.models[id]
		if !ok {
			glog.Warningf("[sync] focus on %s which is not loaded", id)
			return nil
		}
		if err := run("view " + specs(opened, focus.String("selection"))); err != nil {
			return err
		}
		e.applied.focus = key
		return nil
	}

	point, ok := models.FocusPoint(focus)
	if !ok {
		e.applied.focus = key
		return nil
	}
	if e.atoms == nil {
		e.atoms = newAtomIndex(e.renderer.Atoms())
	}
	atom, ok := e.atoms.nearest(point)
	if !ok {
		glog.Warningf("[sync] focus point %v: no atoms loaded", point)
		return nil
	}
	spec := expand(atom, focus.String("xyz_expand"))
	for _, cmd := range []string{"sel " + spec, "show sel", "color byhetero", "view sel"} {
		if err := run(cmd); err != nil {
			return err
		}
	}
	e.applied.focus = key
	return nil
}
