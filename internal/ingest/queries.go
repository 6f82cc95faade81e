package ingest

import (
	"github.com/mauv0809/concession-impact/internal/models"
)

// Cache file names under the data directory, one per query.
const (
	ConcessionsCacheFile = "ncso_dates.csv"
	TariffCacheFile      = "tariff.csv"
	PrescribingCacheFile = "rx_qty.csv"
)

// ConcessionsQuery returns one row per (vmpp, month) with a concession.
func ConcessionsQuery() Query {
	return Query{
		Name: concessionsTable,
		SQL: `
SELECT DISTINCT
	ncso.vmpp AS vmpp,
	ncso.date AS month,
	TRUE AS concession_bool
FROM dmd_ncso_concession AS ncso
ORDER BY month, vmpp`,
	}
}

// TariffQuery returns monthly Drug Tariff prices for every VMPP that has
// ever been on concession, with its BNF code, name and pack size.
func TariffQuery() Query {
	return Query{
		Name: tariffTable,
		SQL: `
SELECT
	vmpp.bnf_code AS bnf_code,
	vmpp.nm AS nm,
	vmpp.qtyval AS unit_qty,
	dt.vmpp AS vmpp,
	dt.date AS date,
	dt.price_pence AS price_pence
FROM dmd_tariff_price AS dt
INNER JOIN dmd_vmpp AS vmpp ON dt.vmpp = vmpp.id
WHERE dt.vmpp IN (SELECT DISTINCT vmpp FROM dmd_ncso_concession)
ORDER BY dt.vmpp, dt.date`,
	}
}

// PrescribingQuery returns the total quantity dispensed per BNF code and
// month from since onwards, limited to BNF codes of conceded VMPPs.
func PrescribingQuery(since models.Month) Query {
	return Query{
		Name: prescribingTable,
		SQL: `
SELECT
	rx.bnf_code AS bnf_code,
	rx.month AS month,
	SUM(rx.quantity) AS quantity
FROM prescribing AS rx
WHERE rx.bnf_code IN (
	SELECT DISTINCT vmpp.bnf_code
	FROM dmd_vmpp AS vmpp
	INNER JOIN dmd_ncso_concession AS ncso ON ncso.vmpp = vmpp.id
)
AND rx.month >= $1
GROUP BY rx.bnf_code, rx.month
ORDER BY rx.month DESC, rx.bnf_code`,
		Args: []interface{}{since.Time()},
	}
}
