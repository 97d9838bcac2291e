package models

// Field table helpers

func text(name string) FieldSpec {
	return FieldSpec{Name: name, Column: name, Type: FieldText}
}

func timestamp(name string) FieldSpec {
	return FieldSpec{Name: name, Column: name, Type: FieldTimestamp}
}

func required(f FieldSpec) FieldSpec {
	f.Required = true
	return f
}

// sourceFields are shared by every entity. file_path is stored as
// html_file_path; file_data is archived only.
func sourceFields(strict bool) []FieldSpec {
	return []FieldSpec{
		{Name: "file_path", Column: "html_file_path", Type: FieldText, Required: true},
		{Name: "file_data", Type: FieldText, Required: strict},
		{Name: "created_dt", Column: "created_dt", Type: FieldTimestamp, Required: strict},
		{Name: "updated_dt", Column: "updated_dt", Type: FieldTimestamp, Required: strict},
	}
}

// productFields are the classification columns every case table carries.
func productFields(strict bool) []FieldSpec {
	names := []string{"prod_id", "prod_name", "sub_prod_id", "sub_prod_name", "sub_subprod_id"}
	out := make([]FieldSpec, 0, len(names))
	for _, n := range names {
		f := text(n)
		f.Required = strict
		out = append(out, f)
	}
	return out
}

func circularFields(strict bool) []FieldSpec {
	date := timestamp("circular_date")
	subject := text("cir_subject")
	date.Required, subject.Required = strict, strict
	return []FieldSpec{date, required(text("circular_no")), subject}
}

func partyFields(strict bool) []FieldSpec {
	names := []string{"eq_citation", "case_no", "order_no", "judge_name", "party_name"}
	out := make([]FieldSpec, 0, len(names))
	for _, n := range names {
		f := text(n)
		f.Required = strict
		out = append(out, f)
	}
	return out
}

func concat(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func caseEntity(slug, tag, singular, plural string, fields []FieldSpec) *Entity {
	return &Entity{
		Slug:       slug,
		Table:      slug,
		ExportTag:  tag,
		PrimaryKey: "case_id",
		StorageDir: slug,
		FileSuffix: slug + ".json",
		Singular:   singular,
		Plural:     plural,
		Fields:     fields,
	}
}

// Built-in entities

var Articles = &Entity{
	Slug:       "articles",
	Table:      "articles",
	ExportTag:  "articles",
	PrimaryKey: "article_id",
	StorageDir: "articles",
	FileSuffix: "article.json",
	Singular:   "Article",
	Plural:     "articles",
	Fields: concat(
		[]FieldSpec{
			required(timestamp("article_date")),
			required(text("summary")),
			required(text("author")),
		},
		sourceFields(true),
	),
}

var BudgetsUnion = &Entity{
	Slug:       "budgets_union",
	Table:      "budgets_union",
	ExportTag:  "budgets_union",
	PrimaryKey: "circular_id",
	StorageDir: "budgets_union",
	FileSuffix: "budgetsunion.json",
	Singular:   "Budget Union file",
	Plural:     "Budget Union files",
	Fields: concat(
		[]FieldSpec{
			required(timestamp("circular_date")),
			required(text("circular_no")),
			required(text("cir_subject")),
		},
		sourceFields(true),
	),
}

var Features = &Entity{
	Slug:       "features",
	Table:      "features",
	ExportTag:  "features",
	PrimaryKey: "feature_id",
	StorageDir: "features",
	FileSuffix: "feature.json",
	Singular:   "Feature",
	Plural:     "Features",
	Fields: concat(
		[]FieldSpec{timestamp("feature_date"), text("subject"), text("summary")},
		sourceFields(false),
	),
}

var CE = caseEntity("ce", "casedata_ce", "CE Case", "CE Cases",
	concat(productFields(true), circularFields(true), partyFields(true), sourceFields(true)))

var CGST = caseEntity("cgst", "cgst", "CGST Case", "CGST Cases",
	concat(productFields(true), circularFields(true), sourceFields(true)))

var CU = caseEntity("cu", "casedata_cu", "CU Case", "CU Cases",
	concat(productFields(false), circularFields(false), partyFields(false), sourceFields(false)))

var DGFT = caseEntity("dgft", "dgft", "DGFT Case", "DGFT Cases",
	concat(productFields(false), []FieldSpec{text("state_id")}, circularFields(false), sourceFields(false)))

var SGST = caseEntity("sgst", "casedata_sgst", "SGST Case", "SGST Cases",
	concat(
		productFields(false),
		[]FieldSpec{text("state_id"), text("section_no"), text("rule_no"), text("igst_section_no"), text("igst_rule_no")},
		circularFields(false),
		partyFields(false),
		sourceFields(false),
	))

var ST = caseEntity("st", "cs", "ST Case", "ST Cases",
	concat(productFields(false), circularFields(false), partyFields(false), sourceFields(false)))

var VAT = caseEntity("vat", "vat", "VAT Case", "VAT Cases",
	concat(productFields(false), []FieldSpec{text("state_id")}, circularFields(false), partyFields(false), sourceFields(false)))

// BuiltinEntities returns the ten configured entity tables.
func BuiltinEntities() []*Entity {
	return []*Entity{Articles, BudgetsUnion, CE, CGST, CU, DGFT, Features, SGST, ST, VAT}
}

// DefaultRegistry indexes BuiltinEntities. It panics on a misconfigured table.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinEntities()...)
	if err != nil {
		panic(err)
	}
	return r
}
