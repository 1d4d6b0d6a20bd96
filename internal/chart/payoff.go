// Package chart renders payoff curves as standalone HTML pages.
package chart

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/payoff"
)

const (
	colorBackground = "#0f172a"
	colorText       = "#e2e8f0"
	colorMuted      = "#94a3b8"
	colorCurve      = "#38bdf8"
	colorZero       = "#f97316"
)

// Options sizes the rendered chart.
type Options struct {
	Width  int // px
	Height int // px
	Title  string
}

// RenderPayoff writes an HTML page plotting expiry P&L against spot, with
// a zero line and a marker at each break-even.
func RenderPayoff(w io.Writer, res payoff.Result, o Options) error {
	if res.Empty() || len(res.Curve) == 0 {
		return errors.NewComputeError("chart", fmt.Errorf("no legs to plot"))
	}
	if o.Width <= 0 {
		o.Width = 1100
	}
	if o.Height <= 0 {
		o.Height = 520
	}
	title := o.Title
	if title == "" {
		title = fmt.Sprintf("%s payoff at expiry", res.Underlying)
	}

	xAxis := make([]string, len(res.Curve))
	data := make([]opts.LineData, len(res.Curve))
	for i, p := range res.Curve {
		xAxis[i] = spotLabel(p.Spot)
		data[i] = opts.LineData{Value: round2(p.PnL)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", o.Width),
			Height:          fmt.Sprintf("%dpx", o.Height),
			BackgroundColor: colorBackground,
			PageTitle:       title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      summary(res),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorMuted},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Spot",
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "P&L",
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorMuted, Opacity: opts.Float(0.2)}},
		}),
	)

	markers := make([]charts.SeriesOpts, 0, len(res.Metrics.BreakEvens)+1)
	markers = append(markers, charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "zero", YAxis: 0}))
	for _, be := range res.Metrics.BreakEvens {
		markers = append(markers, charts.WithMarkPointNameCoordItemOpts(opts.MarkPointNameCoordItem{
			Name:       "BE " + spotLabel(be),
			Coordinate: []interface{}{nearestLabel(xAxis, res, be), 0},
			Value:      spotLabel(be),
			Symbol:     "pin",
		}))
	}
	markers = append(markers, charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
		Label:     &opts.Label{Show: opts.Bool(false)},
		LineStyle: &opts.LineStyle{Color: colorZero, Type: "dashed"},
	}))

	line.SetXAxis(xAxis)
	line.AddSeries("P&L", data,
		append([]charts.SeriesOpts{
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorCurve, Width: 2}),
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.15)}),
		}, markers...)...,
	)

	return line.Render(w)
}

func summary(res payoff.Result) string {
	m := res.Metrics
	bes := make([]string, len(m.BreakEvens))
	for i, be := range m.BreakEvens {
		bes[i] = spotLabel(be)
	}
	be := "none"
	if len(bes) > 0 {
		be = strings.Join(bes, ", ")
	}
	s := fmt.Sprintf("Max profit %.2f | Max loss %.2f | Break-even %s", m.MaxProfit, m.MaxLoss, be)
	if n := len(res.Skipped); n > 0 {
		s += fmt.Sprintf(" | %d skipped", n)
	}
	return s
}

// nearestLabel returns the category label of the sample closest to spot;
// a category axis can only place markers on existing samples.
func nearestLabel(labels []string, res payoff.Result, spot float64) string {
	best, dist := 0, math.Inf(1)
	for i, p := range res.Curve {
		if d := math.Abs(p.Spot - spot); d < dist {
			best, dist = i, d
		}
	}
	return labels[best]
}

func spotLabel(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
