package health

// unionFind is a disjoint-set over dense integer indices with path
// compression and union by rank. The graph is rebuilt per run, so the
// structure is sized once and never grows.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// components groups indices by their root representative
func (uf *unionFind) components() map[int][]int {
	groups := make(map[int][]int)
	for i := range uf.parent {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}
	return groups
}
