package alarm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vpbank/snmp_monitor/models"
)

func title(metric models.MetricType, sev models.Severity, rule string) string {
	return fmt.Sprintf("%s %s: %s", strings.ToUpper(string(sev[:1]))+string(sev[1:]), strings.ToLower(metric.Label()), rule)
}

func message(rule *models.AlarmRule, sev models.Severity, threshold float64, s models.Sample) string {
	scope := fmt.Sprintf("device %d", s.DeviceID)
	if s.InterfaceID != 0 {
		scope += fmt.Sprintf(" interface %d", s.InterfaceID)
	}
	return fmt.Sprintf("%s is %s on %s (%s threshold %s %s)",
		s.MetricType.Label(),
		formatValue(s.Value, s.MetricType),
		scope,
		sev,
		rule.Operator,
		formatValue(threshold, s.MetricType),
	)
}

func formatValue(v float64, metric models.MetricType) string {
	num := strconv.FormatFloat(v, 'f', 2, 64)
	switch unit := metric.Unit(); unit {
	case "":
		return num
	case "percent":
		return num + "%"
	default:
		return num + " " + unit
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
