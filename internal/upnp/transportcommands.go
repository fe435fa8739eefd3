package upnp

import (
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"
)

// ServiceAction is one action advertised by a service control description.
type ServiceAction struct {
	Name      string
	Arguments []Argument
}

// Argument describes one action argument from the SCPD.
type Argument struct {
	Name                 string
	Direction            string
	RelatedStateVariable string
}

// StateVariable describes one SCPD state variable, including its allowed
// value list when the variable is enumerated.
type StateVariable struct {
	Name          string
	DataType      string
	SendsEvents   bool
	AllowedValues []string
}

// TransportCommands holds the parsed control surface of a UPnP service:
// the action list and the state variable table from its SCPD document.
type TransportCommands struct {
	StateVariables []StateVariable
	ServiceActions []ServiceAction
}

// ParseSCPD builds a TransportCommands from a service control description
// document. Unknown or partial entries are kept with whatever fields were
// present; renderers in the wild ship surprisingly sloppy SCPDs.
func ParseSCPD(doc *etree.Document) *TransportCommands {
	commands := &TransportCommands{}

	for _, actionElem := range doc.FindElements("//actionList/action") {
		action := ServiceAction{Name: childText(actionElem, "name")}
		for _, argElem := range actionElem.FindElements("argumentList/argument") {
			action.Arguments = append(action.Arguments, Argument{
				Name:                 childText(argElem, "name"),
				Direction:            childText(argElem, "direction"),
				RelatedStateVariable: childText(argElem, "relatedStateVariable"),
			})
		}
		commands.ServiceActions = append(commands.ServiceActions, action)
	}

	for _, varElem := range doc.FindElements("//serviceStateTable/stateVariable") {
		variable := StateVariable{
			Name:        childText(varElem, "name"),
			DataType:    childText(varElem, "dataType"),
			SendsEvents: strings.EqualFold(varElem.SelectAttrValue("sendEvents", ""), "yes"),
		}
		for _, allowed := range varElem.FindElements("allowedValueList/allowedValue") {
			variable.AllowedValues = append(variable.AllowedValues, strings.TrimSpace(allowed.Text()))
		}
		commands.StateVariables = append(commands.StateVariables, variable)
	}

	return commands
}

func childText(parent *etree.Element, tag string) string {
	if child := parent.FindElement(tag); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}

// Action looks up an advertised action by name, case-insensitively.
func (c *TransportCommands) Action(name string) *ServiceAction {
	for i := range c.ServiceActions {
		if strings.EqualFold(c.ServiceActions[i].Name, name) {
			return &c.ServiceActions[i]
		}
	}
	return nil
}

func (c *TransportCommands) stateVariable(name string) *StateVariable {
	if name == "" {
		return nil
	}
	for i := range c.StateVariables {
		if strings.EqualFold(c.StateVariables[i].Name, name) {
			return &c.StateVariables[i]
		}
	}
	return nil
}

// BuildPost renders the full SOAP envelope for an action invocation.
// Output-direction arguments are skipped. Each input argument resolves its
// value from args first, then the scalar value, then the empty string;
// InstanceID is always "0". When the related state variable carries an
// allowed value list the resolved value is coerced onto it: a
// case-insensitive match takes the list's canonical casing, anything else
// falls back to the first allowed value.
func (c *TransportCommands) BuildPost(action *ServiceAction, xmlNamespace, value string, args map[string]string) string {
	var buf strings.Builder
	buf.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n")
	buf.WriteString("<SOAP-ENV:Envelope xmlns:SOAP-ENV=\"http://schemas.xmlsoap.org/soap/envelope/\" SOAP-ENV:encodingStyle=\"http://schemas.xmlsoap.org/soap/encoding/\">")
	buf.WriteString("<SOAP-ENV:Body>")
	buf.WriteString("<m:")
	buf.WriteString(action.Name)
	buf.WriteString(" xmlns:m=\"")
	buf.WriteString(xmlNamespace)
	buf.WriteString("\">")

	for _, arg := range action.Arguments {
		if strings.EqualFold(arg.Direction, "out") {
			continue
		}

		argValue := value
		if arg.Name == "InstanceID" {
			argValue = "0"
		} else if mapped, ok := args[arg.Name]; ok {
			argValue = mapped
		}

		c.writeArgument(&buf, arg, argValue)
	}

	buf.WriteString("</m:")
	buf.WriteString(action.Name)
	buf.WriteString(">")
	buf.WriteString("</SOAP-ENV:Body>")
	buf.WriteString("</SOAP-ENV:Envelope>")

	return buf.String()
}

func (c *TransportCommands) writeArgument(buf *strings.Builder, arg Argument, value string) {
	state := c.stateVariable(arg.RelatedStateVariable)

	if state != nil && len(state.AllowedValues) > 0 {
		coerced := state.AllowedValues[0]
		for _, allowed := range state.AllowedValues {
			if strings.EqualFold(allowed, value) {
				coerced = allowed
				break
			}
		}
		value = coerced
	}

	buf.WriteString("<")
	buf.WriteString(arg.Name)
	if state != nil {
		dataType := state.DataType
		if dataType == "" {
			dataType = "string"
		}
		buf.WriteString(" xmlns:dt=\"urn:schemas-microsoft-com:datatypes\" dt:dt=\"")
		buf.WriteString(dataType)
		buf.WriteString("\"")
	}
	buf.WriteString(">")
	buf.WriteString(escapeXML(value))
	buf.WriteString("</")
	buf.WriteString(arg.Name)
	buf.WriteString(">")
}

func escapeXML(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}
