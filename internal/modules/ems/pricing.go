package ems

import (
	"exec_engine/internal/helper"
	"exec_engine/internal/models"
)

// makerPrice — общее правило котирования: если спред шире минимального шага
// цены, встаём на тик внутрь спреда от дальней стороны книги; иначе — на
// свой край. Спред не пересекаем.
func makerPrice(book models.BookL1, side models.Side, tick float64) float64 {
	if book.Spread() > tick {
		if side == models.SideBuy {
			return helper.RoundDownToTick(book.Ask-tick, tick)
		}
		return helper.RoundUpToTick(book.Bid+tick, tick)
	}
	if side == models.SideBuy {
		return book.Bid
	}
	return book.Ask
}

// crossed — цена книги прошла сквозь нашу котировку против тейкера:
// для бида рынок ушёл выше, для аска — ниже.
func crossed(book models.BookL1, side models.Side, quoted float64) bool {
	if side == models.SideBuy {
		return book.Bid > quoted
	}
	return book.Ask < quoted
}
