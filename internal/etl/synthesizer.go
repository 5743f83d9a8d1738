package etl

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/BartekS5/ledgerbridge/pkg/models"
)

const (
	reportName     = "LedgerBridgeReport"
	formName       = "MyForm"
	collectionName = "MyCollection"
	blankFieldName = "FldBlank"
	exportFormat   = "XML (Data Interchange)"

	// emptyDateSentinel is requested for blank dates; the normalizer maps it
	// back to an empty cell.
	emptyDateSentinel = "ñ"
)

// plainIdentifier matches source expressions that name a single method of
// the record, optionally of its parent ("..Name").
var plainIdentifier = regexp.MustCompile(`^(\.\.)?[A-Za-z0-9_]+$`)

// expressionText is the character set a formula may use. Source text outside
// it is sent as a string constant.
var expressionText = regexp.MustCompile(`^[A-Za-z0-9_$:.()+\-*/<>=,"\s]*$`)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// StaticVariables scope the report on the remote side.
type StaticVariables struct {
	Company  string
	FromDate string // YYYYMMDD
	ToDate   string // YYYYMMDD
}

// QueryDescriptor is the report definition synthesized for one dataset.
// Declarations are kept in emission order.
type QueryDescriptor struct {
	Table      string
	Parts      []PartDecl
	Lines      []LineDecl
	Fields     []FieldDecl
	Collection CollectionDecl
	Formulae   []FormulaDecl
}

// PartDecl walks one level of the collection route.
type PartDecl struct {
	Name     string `xml:"NAME,attr"`
	Lines    string `xml:"LINES"`
	Repeat   string `xml:"REPEAT"`
	Scrolled string `xml:"SCROLLED"`
}

// LineDecl lists the fields of a line, or explodes into the next part.
type LineDecl struct {
	Name    string `xml:"NAME,attr"`
	Fields  string `xml:"FIELDS"`
	Explode string `xml:"EXPLODE,omitempty"`
}

// FieldDecl is one output field; XMLTag is empty for FldBlank.
type FieldDecl struct {
	Name   string `xml:"NAME,attr"`
	Set    string `xml:"SET"`
	XMLTag string `xml:"XMLTAG,omitempty"`
}

// CollectionDecl is the root collection with its fetch list and filters.
type CollectionDecl struct {
	Name   string `xml:"NAME,attr"`
	Type   string `xml:"TYPE"`
	Fetch  string `xml:"FETCH,omitempty"`
	Filter string `xml:"FILTER,omitempty"`
}

// FormulaDecl is a named filter formula.
type FormulaDecl struct {
	Type string `xml:"TYPE,attr"`
	Name string `xml:"NAME,attr"`
	Expr string `xml:",chardata"`
}

// Synthesize builds the report definition for schema. The collection path's
// first segment is the collection type; each further segment is a nested
// route walked by one part per level, down to the record-level collection.
func Synthesize(schema models.TableSchema) *QueryDescriptor {
	route := schema.Route()
	collectionType := ""
	if len(route) > 0 {
		collectionType = route[0]
		route = route[1:]
	}
	levels := append([]string{collectionName}, route...)

	q := &QueryDescriptor{Table: schema.Name}

	for i, level := range levels {
		line := numbered("MyLine", i+1)
		q.Parts = append(q.Parts, PartDecl{
			Name:     numbered("MyPart", i+1),
			Lines:    line,
			Repeat:   line + " : " + level,
			Scrolled: "Vertical",
		})
	}

	for i := 0; i < len(levels)-1; i++ {
		q.Lines = append(q.Lines, LineDecl{
			Name:    numbered("MyLine", i+1),
			Fields:  blankFieldName,
			Explode: numbered("MyPart", i+2),
		})
	}

	fieldNames := make([]string, 0, len(schema.Fields))
	for i, f := range schema.Fields {
		name := numbered("Fld", i+1)
		fieldNames = append(fieldNames, name)
		q.Fields = append(q.Fields, FieldDecl{
			Name:   name,
			Set:    fieldExpression(f),
			XMLTag: numbered("F", i+1),
		})
	}
	leafFields := strings.Join(fieldNames, ",")
	if leafFields == "" {
		leafFields = blankFieldName
	}
	q.Lines = append(q.Lines, LineDecl{
		Name:   numbered("MyLine", len(levels)),
		Fields: leafFields,
	})
	q.Fields = append(q.Fields, FieldDecl{Name: blankFieldName, Set: `""`})

	q.Collection = CollectionDecl{
		Name:  collectionName,
		Type:  collectionType,
		Fetch: strings.Join(schema.Fetch, ","),
	}
	filterNames := make([]string, 0, len(schema.Filters))
	for i, expr := range schema.Filters {
		name := numbered("Fltr", i+1)
		filterNames = append(filterNames, name)
		q.Formulae = append(q.Formulae, FormulaDecl{Type: "Formulae", Name: name, Expr: expr})
	}
	q.Collection.Filter = strings.Join(filterNames, ",")

	return q
}

// fieldExpression translates a FieldSpec into the remote value idiom.
func fieldExpression(f models.FieldSpec) string {
	if !plainIdentifier.MatchString(f.Field) {
		if !expressionText.MatchString(f.Field) {
			return `"` + literalEscaper.Replace(f.Field) + `"`
		}
		return f.Field
	}
	v := "$" + f.Field
	switch f.Type {
	case models.TypeText:
		return v
	case models.TypeLogical:
		return fmt.Sprintf("if %s then 1 else 0", v)
	case models.TypeDate:
		return fmt.Sprintf(`if $$IsEmpty:%s then $$StrByCharCode:241 else $$PyrlYYYYMMDDFormat:%s:"-"`, v, v)
	case models.TypeNumber:
		return fmt.Sprintf(`if $$IsEmpty:%s then "0" else $$String:%s`, v, v)
	case models.TypeRate:
		return fmt.Sprintf(`if $$IsEmpty:%s then 0 else $$Number:%s`, v, v)
	case models.TypeAmount:
		return fmt.Sprintf(`$$StringFindAndReplace:(if $$IsDebit:%s then -$$NumValue:%s else $$NumValue:%s):"(-)":"-"`, v, v, v)
	case models.TypeQuantity:
		return fmt.Sprintf(`$$StringFindAndReplace:(if $$IsInwards:%s then $$Number:$$String:%s:"TailUnits" else -$$Number:$$String:%s:"TailUnits"):"(-)":"-"`, v, v, v)
	default:
		return f.Field
	}
}

func numbered(prefix string, n int) string {
	return fmt.Sprintf("%s%02d", prefix, n)
}

// FieldCount returns the number of field declarations, the blank terminal
// field included.
func (q *QueryDescriptor) FieldCount() int {
	return len(q.Fields)
}

type requestEnvelope struct {
	XMLName xml.Name      `xml:"ENVELOPE"`
	Header  requestHeader `xml:"HEADER"`
	Body    requestBody   `xml:"BODY"`
}

type requestHeader struct {
	Version string `xml:"VERSION"`
	Request string `xml:"TALLYREQUEST"`
	Type    string `xml:"TYPE"`
	ID      string `xml:"ID"`
}

type requestBody struct {
	Desc requestDesc `xml:"DESC"`
}

type requestDesc struct {
	Static  staticVariables `xml:"STATICVARIABLES"`
	Message tdlMessage      `xml:"TDL>TDLMESSAGE"`
}

type staticVariables struct {
	ExportFormat string `xml:"SVEXPORTFORMAT"`
	FromDate     string `xml:"SVFROMDATE,omitempty"`
	ToDate       string `xml:"SVTODATE,omitempty"`
	Company      string `xml:"SVCURRENTCOMPANY,omitempty"`
}

type tdlMessage struct {
	Report struct {
		Name  string `xml:"NAME,attr"`
		Forms string `xml:"FORMS"`
	} `xml:"REPORT"`
	Form struct {
		Name  string `xml:"NAME,attr"`
		Parts string `xml:"PARTS"`
	} `xml:"FORM"`
	Parts      []PartDecl     `xml:"PART"`
	Lines      []LineDecl     `xml:"LINE"`
	Fields     []FieldDecl    `xml:"FIELD"`
	Collection CollectionDecl `xml:"COLLECTION"`
	Formulae   []FormulaDecl  `xml:"SYSTEM"`
}

// Render produces the request body understood by the remote system.
func (q *QueryDescriptor) Render(vars StaticVariables) ([]byte, error) {
	env := requestEnvelope{
		Header: requestHeader{Version: "1", Request: "Export", Type: "Data", ID: reportName},
	}
	env.Body.Desc.Static = staticVariables{
		ExportFormat: exportFormat,
		FromDate:     vars.FromDate,
		ToDate:       vars.ToDate,
		Company:      vars.Company,
	}

	msg := &env.Body.Desc.Message
	msg.Report.Name = reportName
	msg.Report.Forms = formName
	msg.Form.Name = formName
	msg.Form.Parts = numbered("MyPart", 1)
	msg.Parts = q.Parts
	msg.Lines = q.Lines
	msg.Fields = q.Fields
	msg.Collection = q.Collection
	msg.Formulae = q.Formulae

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("render request for %s: %w", q.Table, err)
	}
	return append([]byte(xml.Header), out...), nil
}
