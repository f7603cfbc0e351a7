package game

import (
	"strings"

	"github.com/mapleleafu/typearena/typearena-backend/rng"
)

// dictionary is the source of real words for falling words. Words that
// use characters outside the room's set are skipped.
var dictionary = strings.Fields(`
	able about above act add after again age ago air all also always and
	animal answer any apple area arm around art ask back ball bank base
	bear beat bed before begin bell best better big bird black blue board
	boat body bone book both box boy bread break bring brown build burn
	busy buy call came camp can car card care carry case cat catch cause
	cell chair change check child city class clean clear clock close cloud
	coast code cold color come common cook cool copy corn cost count cover
	cross crowd cup cut dance dark data day deal deep desk dog door down
	draw dream dress drink drive drop dry duck each early earth east easy
	edge egg end enjoy enter even event every eye face fact fair fall farm
	fast fear feel field fight file fill find fine fire fish fit five flat
	floor flow fly food foot force form free fresh friend front fruit full
	game garden gate gift girl give glass gold good grass great green group
	grow guess half hand happy hard hat head hear heart heat heavy help
	high hill hold home hope horse hot hour house huge idea inch iron
	island join jump just keep key kind king kite knee know lake lamp land
	large last late laugh lead leaf learn left leg less letter light like
	line lion list little live long look loud love low lucky main make
	many map mark market match may meal mean meet metal milk mind minute
	model money moon more morning mother move much music name near neck
	need never new next nice night noise north note number ocean off offer
	often oil old one open orange order other page paint pair paper park
	part party pass path pay pen people pick piece place plan plant play
	point pool poor port power press pretty print quick quiet race rain
	reach read ready real red rest rich ride right ring river road rock
	roll room root rope round rule run safe sail salt sand save say school
	sea seat second see seed sell send serve set shape share ship shoe
	shop short show side sign silver simple sing sister size skill skin
	sky sleep slow small smile snow soft soil solve song soon sound south
	space speak speed spell spend spring stand star start state stay step
	stick still stone stop store storm story street strong study such
	sugar summer sun sure swim table tail take talk tall team tell test
	than thank thing think three time tiny today tool top touch town track
	trade train tree trip true try turn type under unit use valley value
	very view visit voice wait walk wall warm wash watch water wave way
	wear week well west wheel white whole wide wild wind window winter
	wish woman wood word work world write yard year yellow young zero
`)

const (
	fwPoolSize   = 120
	fwMinWordLen = 3
	fwMaxWordLen = 8
)

// buildWordPool returns a shuffled pool of words typeable with charset.
// Real words are sampled first; when too few fit, random strings drawn
// from the set make up the difference.
func buildWordPool(r *rng.RNG, charset []rune) []string {
	allowed := make(map[rune]bool, len(charset))
	for _, c := range charset {
		allowed[c] = true
	}

	var candidates []string
	for _, w := range dictionary {
		n := len([]rune(w))
		if n >= fwMinWordLen && n <= fwMaxWordLen && typeable(w, allowed) {
			candidates = append(candidates, w)
		}
	}
	pool := rng.Sample(r, candidates, fwPoolSize)
	for len(pool) < fwPoolSize {
		n := r.NextInt(fwMinWordLen, fwMaxWordLen-2)
		word := make([]rune, n)
		for i := range word {
			word[i] = rng.Choice(r, charset)
		}
		pool = append(pool, string(word))
	}

	rng.Shuffle(r, pool)
	return pool
}

func typeable(word string, allowed map[rune]bool) bool {
	for _, c := range word {
		if !allowed[c] {
			return false
		}
	}
	return true
}
