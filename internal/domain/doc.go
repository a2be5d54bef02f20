// Package domain models the weather features a rain decision tree is
// evaluated against, and the events a prediction produces.
//
// # Features
//
// Trees test daily weather aggregates by short name:
//
//	tmin  minimum air temperature at 2 m, °C
//	tmax  maximum air temperature at 2 m, °C
//	tavg  mean of tmin and tmax, °C
//	wspd  maximum wind speed at 10 m, km/h
//	rhum  maximum relative humidity at 2 m, %
//	pres  sea-level pressure, hPa
//
// Feature names are part of the tree document contract. A tree may test any
// subset of them and a vector may carry more keys than the tree needs.
//
// # Forecast Source
//
// Forecast-driven predictions read the Open-Meteo daily forecast for a fixed
// station. The daily variables map onto features as follows:
//
//	temperature_2m_max        → tmax
//	temperature_2m_min        → tmin
//	windspeed_10m_max         → wspd
//	relative_humidity_2m_max  → rhum
//	(tmin + tmax) / 2         → tavg
//
// A null value in the response leaves the feature out of the vector, so the
// classifier reports it as missing only when the tree actually tests it.
// Dates are calendar days in the station's time zone, formatted YYYY-MM-DD.
// A date outside the forecast window is a [FetchError] wrapping
// [ErrDateUnavailable].
//
// # Classes
//
// Leaves carry label 0 (no rain, "Tidak Hujan") or 1 (rain, "Hujan"). The
// user-facing names follow the Indonesian wording of the station's audience.
package domain
