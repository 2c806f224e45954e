package ui

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the newest width samples of data, scaled to their
// maximum. Shorter input is padded on the left with the lowest block.
func Sparkline(data []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	peak := 0.0
	for _, v := range data {
		peak = max(peak, v)
	}

	out := make([]rune, width)
	pad := width - len(data)
	for i := range out {
		out[i] = sparkBlocks[0]
		if i < pad || peak <= 0 {
			continue
		}
		if v := data[i-pad]; v > 0 {
			idx := min(int(v/peak*float64(len(sparkBlocks)-1)), len(sparkBlocks)-1)
			out[i] = sparkBlocks[idx]
		}
	}
	return string(out)
}
