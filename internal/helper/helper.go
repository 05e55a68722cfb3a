package helper

import "math"

// Округления до шага инструмента. Чистая арифметика, без аллокаций —
// зовётся из горячих циклов алгоритмов.

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundToTick — к ближайшему тику.
func RoundToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Round(px / tick)
	return steps * tick
}

// RoundAmount округляет количество вниз до шага лота. Вверх нельзя —
// биржа отвергнет превышение баланса.
func RoundAmount(amount, step float64) float64 {
	if step <= 0 {
		return amount
	}
	steps := math.Floor(amount/step + 1e-9)
	return steps * step
}

// EqZero — количество меньше кванта считаем нулём.
func EqZero(v float64) bool { return math.Abs(v) < 1e-12 }
