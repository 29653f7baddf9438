package rbac

import "testing"

func levelPtr(l Level) *Level { return &l }

func TestResolve(t *testing.T) {
	cases := []struct {
		name     string
		explicit *Level
		isPublic bool
		want     Level
	}{
		{name: "public without grant", isPublic: true, want: LevelGuest},
		{name: "private without grant", isPublic: false, want: LevelUnauthorized},
		{name: "explicit owner on private", explicit: levelPtr(LevelOwner), want: LevelOwner},
		{name: "explicit contributor on public", explicit: levelPtr(LevelContributor), isPublic: true, want: LevelContributor},
		{name: "explicit unauthorized overrides public", explicit: levelPtr(LevelUnauthorized), isPublic: true, want: LevelUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.explicit, tc.isPublic); got != tc.want {
				t.Fatalf("Resolve() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLevelsAscend(t *testing.T) {
	ordered := []Level{LevelUnauthorized, LevelGuest, LevelContributor, LevelMaintainer, LevelOwner}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Fatalf("%v should be below %v", ordered[i-1], ordered[i])
		}
	}
	if LevelUnauthorized.CanRead() || !LevelGuest.CanRead() {
		t.Fatal("read access must start at guest")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[int]Level{
		-5:  LevelUnauthorized,
		0:   LevelUnauthorized,
		15:  LevelGuest,
		20:  LevelContributor,
		39:  LevelMaintainer,
		100: LevelOwner,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelMarshalJSON(t *testing.T) {
	body, err := LevelMaintainer.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(body) != `"maintainer"` {
		t.Fatalf("MarshalJSON() = %s", body)
	}
}
