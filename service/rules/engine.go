package rules

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/xerrors"

	"github.com/JSNN15/PPE-Detection-System/model"
	"github.com/JSNN15/PPE-Detection-System/service/config"
)

type classRule struct {
	mandatory bool
	enabled   bool
	minConf   float64
}

type zoneRules struct {
	mandatory   []string
	conditional []string
	override    model.Severity
}

type engine struct {
	classes     map[string]classRule
	zones       map[string]zoneRules
	allMandated []string
	defaultConf float64
}

// NewEngine validates the loaded PPE configuration and builds the rule
// engine. A malformed rule set is a startup error; the process must not run
// with partial or ambiguous rules.
func NewEngine(ppe config.PPEConfig, defaultConfidence float64) (IService, error) {
	e := &engine{
		classes:     map[string]classRule{},
		zones:       map[string]zoneRules{},
		defaultConf: defaultConfidence,
	}

	if len(ppe.Mandatory) == 0 {
		return nil, xerrors.New("rule config: no mandatory PPE classes defined")
	}

	for _, c := range ppe.Mandatory {
		if err := e.addClass(c, true); err != nil {
			return nil, err
		}
		e.allMandated = append(e.allMandated, c.Name)
	}
	for _, c := range ppe.Conditional {
		if err := e.addClass(c, false); err != nil {
			return nil, err
		}
	}
	sort.Strings(e.allMandated)

	for _, z := range ppe.Zones {
		if z.ZoneID == "" {
			return nil, xerrors.New("rule config: zone with empty zone_id")
		}
		if _, ok := e.zones[z.ZoneID]; ok {
			return nil, xerrors.New(fmt.Sprintf("rule config: duplicate zone %q", z.ZoneID))
		}

		zr := zoneRules{}
		for _, name := range z.MandatoryPPE {
			r, ok := e.classes[name]
			if !ok {
				return nil, xerrors.New(fmt.Sprintf("rule config: zone %q references unknown class %q", z.ZoneID, name))
			}
			if !r.mandatory {
				return nil, xerrors.New(fmt.Sprintf("rule config: zone %q lists conditional class %q as mandatory", z.ZoneID, name))
			}
			zr.mandatory = append(zr.mandatory, name)
		}
		for _, name := range z.ConditionalPPE {
			r, ok := e.classes[name]
			if !ok {
				return nil, xerrors.New(fmt.Sprintf("rule config: zone %q references unknown class %q", z.ZoneID, name))
			}
			if r.mandatory {
				return nil, xerrors.New(fmt.Sprintf("rule config: zone %q lists mandatory class %q as conditional", z.ZoneID, name))
			}
			// Conditional classes count only when globally enabled.
			if r.enabled {
				zr.conditional = append(zr.conditional, name)
			}
		}

		switch z.SeverityOverride {
		case "":
		case string(model.SeverityLow):
			zr.override = model.SeverityLow
		case string(model.SeverityMedium):
			zr.override = model.SeverityMedium
		case string(model.SeverityHigh):
			zr.override = model.SeverityHigh
		default:
			return nil, xerrors.New(fmt.Sprintf("rule config: zone %q has invalid severity %q", z.ZoneID, z.SeverityOverride))
		}

		sort.Strings(zr.mandatory)
		sort.Strings(zr.conditional)
		e.zones[z.ZoneID] = zr
	}

	return e, nil
}

func (e *engine) addClass(c config.PPEClass, mandatory bool) error {
	if c.Name == "" {
		return xerrors.New("rule config: class with empty name")
	}
	if _, ok := e.classes[c.Name]; ok {
		return xerrors.New(fmt.Sprintf("rule config: duplicate class %q", c.Name))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return xerrors.New(fmt.Sprintf("rule config: class %q confidence %v out of range", c.Name, c.MinConfidence))
	}

	enabled := c.Enabled
	if mandatory {
		// Mandatory classes are always enforced.
		enabled = true
	}
	e.classes[c.Name] = classRule{mandatory: mandatory, enabled: enabled, minConf: c.MinConfidence}
	return nil
}

func (e *engine) TrackedClasses() []string {
	names := make([]string, 0, len(e.classes))
	for name := range e.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *engine) MinConfidence(class string) float64 {
	if r, ok := e.classes[class]; ok && r.minConf > 0 {
		return r.minConf
	}
	return e.defaultConf
}

func (e *engine) HasZone(zone string) bool {
	_, ok := e.zones[zone]
	return ok
}

// requiredFor resolves a zone's rule sets. A zone that was never configured
// falls back to every mandatory class and no conditional ones.
func (e *engine) requiredFor(zone string) zoneRules {
	if zr, ok := e.zones[zone]; ok {
		return zr
	}
	return zoneRules{mandatory: e.allMandated}
}

func (e *engine) Verdict(cameraID, zone string, present map[string]bool, ts time.Time) model.ComplianceVerdict {
	zr := e.requiredFor(zone)

	verdict := model.ComplianceVerdict{
		CameraID:  cameraID,
		Timestamp: ts,
	}

	for name, ok := range present {
		if ok {
			verdict.PresentPPE = append(verdict.PresentPPE, name)
		}
	}
	sort.Strings(verdict.PresentPPE)

	for _, name := range zr.mandatory {
		if !present[name] {
			verdict.MissingMandatory = append(verdict.MissingMandatory, name)
		}
	}
	for _, name := range zr.conditional {
		if !present[name] {
			verdict.MissingConditional = append(verdict.MissingConditional, name)
		}
	}

	verdict.IsCompliant = len(verdict.MissingMandatory) == 0 && len(verdict.MissingConditional) == 0
	return verdict
}

func (e *engine) Evaluate(verdict model.ComplianceVerdict, zone string) []model.Violation {
	if verdict.IsCompliant {
		return nil
	}

	missing := make([]string, 0, len(verdict.MissingMandatory)+len(verdict.MissingConditional))
	missing = append(missing, verdict.MissingMandatory...)
	missing = append(missing, verdict.MissingConditional...)
	sort.Strings(missing)

	severity := model.SeverityMedium
	if len(verdict.MissingMandatory) > 0 {
		severity = model.SeverityHigh
	}
	if zr, ok := e.zones[zone]; ok && zr.override != "" {
		severity = zr.override
	}

	return []model.Violation{{
		CameraID:   verdict.CameraID,
		Timestamp:  verdict.Timestamp,
		Severity:   severity,
		MissingPPE: missing,
		Zone:       zone,
	}}
}
