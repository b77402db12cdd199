package termemu

// applySGR mutates the cursor's cell template per a CSI ... m parameter
// list. params is already split on ';'. splitCSIParams keeps only the
// leading number of a ':'-joined parameter, so colon-form extended colors
// (38:2:R:G:B, 58:5:N) are not decoded; only the ';'-separated forms are.
func applySGR(tmpl *Cell, params []int) {
	if len(params) == 0 {
		params = []int{0}
	}
	for i := 0; i < len(params); i++ {
		p := params[i]
		switch {
		case p == 0:
			resetAttrs(tmpl)
		case p == 1:
			tmpl.Attrs.Bold = true
		case p == 2:
			tmpl.Attrs.Dim = true
		case p == 3:
			tmpl.Attrs.Italic = true
		case p == 4:
			tmpl.Attrs.Underline = true
		case p == 7:
			tmpl.Attrs.Reverse = true
		case p == 8:
			tmpl.Attrs.Hidden = true
		case p == 9:
			tmpl.Attrs.Strikethrough = true
		case p == 21: // double underline; tracked as plain underline
			tmpl.Attrs.Underline = true
		case p == 22:
			tmpl.Attrs.Bold = false
			tmpl.Attrs.Dim = false
		case p == 23:
			tmpl.Attrs.Italic = false
		case p == 24:
			tmpl.Attrs.Underline = false
		case p == 27:
			tmpl.Attrs.Reverse = false
		case p == 28:
			tmpl.Attrs.Hidden = false
		case p == 29:
			tmpl.Attrs.Strikethrough = false
		case p >= 30 && p <= 37:
			tmpl.Fg = Indexed(uint8(p - 30))
		case p == 38:
			n := parseExtendedColor(params, &i)
			if n != nil {
				tmpl.Fg = *n
			}
		case p == 39:
			tmpl.Fg = DefaultColor
		case p >= 40 && p <= 47:
			tmpl.Bg = Indexed(uint8(p - 40))
		case p == 48:
			n := parseExtendedColor(params, &i)
			if n != nil {
				tmpl.Bg = *n
			}
		case p == 49:
			tmpl.Bg = DefaultColor
		case p == 58:
			n := parseExtendedColor(params, &i)
			if n != nil {
				tmpl.UnderlineColor = n
			}
		case p == 59:
			tmpl.UnderlineColor = nil
		case p >= 90 && p <= 97:
			tmpl.Fg = Indexed(uint8(p - 90 + 8))
		case p >= 100 && p <= 107:
			tmpl.Bg = Indexed(uint8(p - 100 + 8))
		}
	}
}

func resetAttrs(tmpl *Cell) {
	tmpl.Attrs = Attrs{}
	tmpl.Fg = DefaultColor
	tmpl.Bg = DefaultColor
	tmpl.UnderlineColor = nil
}

// parseExtendedColor consumes the 256-color (5;N) or truecolor (2;R;G;B)
// forms following a 38/48/58 SGR param, advancing *i past what it consumes.
func parseExtendedColor(params []int, i *int) *Color {
	if *i+1 >= len(params) {
		return nil
	}
	switch params[*i+1] {
	case 5:
		if *i+2 >= len(params) {
			return nil
		}
		c := Indexed(uint8(params[*i+2]))
		*i += 2
		return &c
	case 2:
		if *i+4 >= len(params) {
			return nil
		}
		c := RGB(uint8(params[*i+2]), uint8(params[*i+3]), uint8(params[*i+4]))
		*i += 4
		return &c
	}
	return nil
}
