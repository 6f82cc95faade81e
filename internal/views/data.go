package views

// MonthRow is one line of the monthly impact table.
type MonthRow struct {
	Label        string
	Total        string
	Contributors int
}

// IndexData is everything the report page shows.
type IndexData struct {
	Source  string
	Months  []MonthRow
	Total   string
	Message string
}
