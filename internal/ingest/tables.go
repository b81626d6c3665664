package ingest

// Table names for the product dataset.
const (
	TableEligibility = "product_eligibility"
	TableTotalSales  = "product_total_sales"
	TableAdSales     = "product_ad_sales"
)

type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindReal
	// KindBoolean stores TRUE/FALSE as 1/0.
	KindBoolean
)

// ColumnSpec ties a CSV header to its SQL column. Headers and columns share
// names in the source sheets, so one name covers both.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

var tableSpecs = []TableSpec{
	{
		Name: TableEligibility,
		Columns: []ColumnSpec{
			{Name: "eligibility_datetime_utc", Kind: KindText},
			{Name: "item_id", Kind: KindInteger},
			{Name: "eligibility", Kind: KindBoolean},
			{Name: "message", Kind: KindText},
		},
	},
	{
		Name: TableTotalSales,
		Columns: []ColumnSpec{
			{Name: "date", Kind: KindText},
			{Name: "item_id", Kind: KindInteger},
			{Name: "total_sales", Kind: KindReal},
			{Name: "total_units_ordered", Kind: KindInteger},
		},
	},
	{
		Name: TableAdSales,
		Columns: []ColumnSpec{
			{Name: "date", Kind: KindText},
			{Name: "item_id", Kind: KindInteger},
			{Name: "ad_sales", Kind: KindReal},
			{Name: "impressions", Kind: KindInteger},
			{Name: "ad_spend", Kind: KindReal},
			{Name: "clicks", Kind: KindInteger},
			{Name: "units_sold", Kind: KindInteger},
		},
	},
}

// Specs returns the dataset tables in load order.
func Specs() []TableSpec {
	out := make([]TableSpec, len(tableSpecs))
	copy(out, tableSpecs)
	return out
}

func SpecFor(name string) (TableSpec, bool) {
	for _, spec := range tableSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return TableSpec{}, false
}

func TableNames() []string {
	names := make([]string, len(tableSpecs))
	for i, spec := range tableSpecs {
		names[i] = spec.Name
	}
	return names
}
