package notify

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var monthNames = [12]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// Formatter renders human readable notification text in Indonesian.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for the given language tag. An empty tag
// falls back to Indonesian.
func NewFormatter(tag language.Tag) *Formatter {
	if tag == language.Und {
		tag = language.Indonesian
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Amount formats a rupiah amount with locale grouping, e.g. Rp50.000.
func (f *Formatter) Amount(v int64) string {
	return f.printer.Sprintf("Rp%d", v)
}

// Period formats a month and year, e.g. Juni 2024.
func (f *Formatter) Period(year, month int) string {
	if month < 1 || month > 12 {
		return strconv.Itoa(year)
	}
	return monthNames[month-1] + " " + strconv.Itoa(year)
}

// Describe returns the notification text for ev. A non-empty ev.Message wins
// for event types that carry no structured detail.
func (f *Formatter) Describe(ev Event) string {
	switch ev.Type {
	case EventDuesCreated:
		return f.printer.Sprintf("Iuran %s sebesar %s dibuat", f.Period(ev.Year, ev.Month), f.Amount(ev.Amount))
	case EventDuesDeleted:
		return f.printer.Sprintf("Iuran %s dihapus", f.Period(ev.Year, ev.Month))
	case EventDuesBulkManaged:
		return f.printer.Sprintf("%d iuran tahun %s diperbarui", ev.Count, strconv.Itoa(ev.Year))
	case EventDuesBulkPaid:
		return f.printer.Sprintf("%d iuran tahun %s dibayar, total %s", ev.Count, strconv.Itoa(ev.Year), f.Amount(ev.Amount))
	case EventPaymentRecorded:
		return f.printer.Sprintf("Pembayaran %s dicatat untuk %s", f.Amount(ev.Amount), f.Period(ev.Year, ev.Month))
	case EventPaymentDeleted:
		return f.printer.Sprintf("Pembayaran %s dibatalkan", f.Amount(ev.Amount))
	case EventMemberSaved:
		return "Data anggota diperbarui"
	case EventDuesConfigUpdated:
		return f.printer.Sprintf("Iuran bawaan diubah menjadi %s", f.Amount(ev.Amount))
	case EventTransactionSaved:
		if ev.Message != "" {
			return f.printer.Sprintf("Transaksi %s sebesar %s dicatat", ev.Message, f.Amount(ev.Amount))
		}
		return f.printer.Sprintf("Transaksi sebesar %s dicatat", f.Amount(ev.Amount))
	case EventTransactionDelete:
		return "Transaksi dihapus"
	}
	if ev.Message != "" {
		return ev.Message
	}
	return string(ev.Type)
}
