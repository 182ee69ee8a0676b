package classpatch

import (
	"fmt"
	"reflect"

	"github.com/pgaskin/classpatch/patchfile"
	"gopkg.in/yaml.v3"
)

type Patch []*Instruction

type PatchNode []yaml.Node

func (p *PatchNode) ToInstructionNodes() ([]InstructionNode, error) {
	n := make([]InstructionNode, len(*p))
	for i, t := range *p {
		if err := t.DecodeStrict(&n[i]); err != nil {
			return n, err
		}
	}
	return n, nil
}

type Instruction struct {
	Enabled     *Enabled               `yaml:"Enabled,omitempty"`
	Description *Description           `yaml:"Description,omitempty"`
	PatchGroup  *PatchGroup            `yaml:"PatchGroup,omitempty"`
	ExitEarly   *patchfile.ExitEarly   `yaml:"ExitEarly,omitempty"`
	WrapCall    *patchfile.WrapCall    `yaml:"WrapCall,omitempty"`
	WrapReturns *patchfile.WrapReturns `yaml:"WrapReturns,omitempty"`
}

type InstructionNode map[string]yaml.Node

func (i InstructionNode) ToInstruction() (*Instruction, error) {
	if len(i) == 0 {
		return nil, fmt.Errorf("expected instruction, got nothing")
	}
	var found bool
	var n Instruction
	for name, node := range i {
		if found {
			return nil, fmt.Errorf("line %d: multiple types found in instruction, maybe you forgot a '-'", node.Line)
		} else if field := reflect.ValueOf(&n).Elem().FieldByName(name); !field.IsValid() {
			return nil, fmt.Errorf("line %d: unknown instruction type %#v", node.Line, name)
		} else if err := node.DecodeStrict(field.Addr().Interface()); err != nil {
			return nil, fmt.Errorf("line %d: error decoding instruction: %w", node.Line, err)
		} else {
			found = true
		}
	}
	return &n, nil
}

func (i InstructionNode) Line(def int) int {
	for _, node := range i {
		return node.Line
	}
	return def
}

func (i Instruction) ToSingleInstruction() interface{} {
	iv := reflect.ValueOf(i)
	for i := 0; i < iv.NumField(); i++ {
		if !iv.Field(i).IsNil() {
			return iv.Field(i).Elem().Interface()
		}
	}
	return nil
}

// Script returns the script instruction, or nil if it is an option.
func (i Instruction) Script() patchfile.Script {
	s, _ := i.ToSingleInstruction().(patchfile.Script)
	return s
}

type Enabled bool
type Description string
type PatchGroup string
