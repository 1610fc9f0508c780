// Package bundles defines the canonical white-matter bundle taxonomy used by
// the pretrained segmentation models. Channel order is fixed: model output
// channel i always corresponds to Names[i].
package bundles

import "fmt"

// Names lists the 72 bundles in model channel order.
var Names = []string{
	"AF_left", "AF_right",
	"ATR_left", "ATR_right",
	"CA",
	"CC_1", "CC_2", "CC_3", "CC_4", "CC_5", "CC_6", "CC_7",
	"CG_left", "CG_right",
	"CST_left", "CST_right",
	"MLF_left", "MLF_right",
	"FPT_left", "FPT_right",
	"FX_left", "FX_right",
	"ICP_left", "ICP_right",
	"IFO_left", "IFO_right",
	"ILF_left", "ILF_right",
	"MCP",
	"OR_left", "OR_right",
	"POPT_left", "POPT_right",
	"SCP_left", "SCP_right",
	"SLF_I_left", "SLF_I_right",
	"SLF_II_left", "SLF_II_right",
	"SLF_III_left", "SLF_III_right",
	"STR_left", "STR_right",
	"UF_left", "UF_right",
	"CC",
	"T_PREF_left", "T_PREF_right",
	"T_PREM_left", "T_PREM_right",
	"T_PREC_left", "T_PREC_right",
	"T_POSTC_left", "T_POSTC_right",
	"T_PAR_left", "T_PAR_right",
	"T_OCC_left", "T_OCC_right",
	"ST_FO_left", "ST_FO_right",
	"ST_PREF_left", "ST_PREF_right",
	"ST_PREM_left", "ST_PREM_right",
	"ST_PREC_left", "ST_PREC_right",
	"ST_POSTC_left", "ST_POSTC_right",
	"ST_PAR_left", "ST_PAR_right",
	"ST_OCC_left", "ST_OCC_right",
}

// Count is the number of bundles in the taxonomy.
const Count = 72

var index = func() map[string]int {
	m := make(map[string]int, len(Names))
	for i, name := range Names {
		m[name] = i
	}
	return m
}()

// Index returns the channel index for a bundle name.
func Index(name string) (int, error) {
	i, ok := index[name]
	if !ok {
		return 0, fmt.Errorf("unknown bundle: %s", name)
	}
	return i, nil
}

// Valid reports whether name is a known bundle.
func Valid(name string) bool {
	_, ok := index[name]
	return ok
}

// EndingNames returns the output names for the endings model: for each bundle,
// a beginning region ("<bundle>_b") followed by an end region ("<bundle>_e").
// The returned slice matches the endings model's channel order.
func EndingNames() []string {
	out := make([]string, 0, 2*len(Names))
	for _, name := range Names {
		out = append(out, name+"_b", name+"_e")
	}
	return out
}
